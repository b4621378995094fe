// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package qa

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/refualabs/medassist/services/medchat/datatypes"
)

// Hebrew display names for internal metadata values. The wildcard gets
// an explicit phrase so the model never echoes a literal "all".
var (
	hmoDisplayHe = map[string]string{
		datatypes.HMOMaccabi:  "מכבי",
		datatypes.HMOMeuhedet: "מאוחדת",
		datatypes.HMOClalit:   "כללית",
		datatypes.ScopeAll:    "כל הקופות",
	}
	tierDisplayHe = map[string]string{
		datatypes.TierGold:   "זהב",
		datatypes.TierSilver: "כסף",
		datatypes.TierBronze: "ארד",
		datatypes.ScopeAll:   "כל המסלולים",
	}
)

var titleCaser = cases.Title(language.English)

func hmoDisplay(hmo, lang string) string {
	if lang == datatypes.LanguageHebrew {
		if d, ok := hmoDisplayHe[hmo]; ok {
			return d
		}
		return hmo
	}
	if hmo == datatypes.ScopeAll {
		return "All HMOs"
	}
	return titleCaser.String(hmo)
}

func tierDisplay(tier, lang string) string {
	if lang == datatypes.LanguageHebrew {
		if d, ok := tierDisplayHe[tier]; ok {
			return d
		}
		return tier
	}
	if tier == datatypes.ScopeAll {
		return "All Tiers"
	}
	return titleCaser.String(tier)
}

// queryPlanningPrompt asks the model to translate a raw question into
// the sparse filter plan executed against the knowledge base.
const queryPlanningPrompt = `Analyze the user's question and determine the optimal database query filters.

Available chunk types:
- "benefit": Specific service benefits (discounts, coverage limits)
- "contact": Contact information (phone numbers, websites)
- "context": General background information

Available categories:
- "dental", "optometry", "alternative", "communication", "pregnancy", "workshops"

Output ONLY valid JSON with these fields:
{
  "chunk_type": "benefit" | "contact" | "context" | null,
  "category": "dental" | "optometry" | "alternative" | "communication" | "pregnancy" | "workshops" | null,
  "ignore_tier": true | false,
  "needs_comparison": true | false
}

Rules:
- Set "chunk_type": "contact" if user asks about phone numbers, calling, contacting, reaching out
- Set "ignore_tier": true for contact queries (contact info is tier-agnostic)
- Set "needs_comparison": true if comparing tiers (gold vs silver) or HMOs
- Set category if question is about a specific service type
- Set null for fields that shouldn't be filtered

Examples:

User: "What's Maccabi's phone number?"
Output: {"chunk_type": "contact", "category": null, "ignore_tier": true, "needs_comparison": false}

User: "How can I contact the dental department?"
Output: {"chunk_type": "contact", "category": "dental", "ignore_tier": true, "needs_comparison": false}

User: "How much is acupuncture?"
Output: {"chunk_type": "benefit", "category": "alternative", "ignore_tier": false, "needs_comparison": false}

User: "What's the difference between gold and silver for dental?"
Output: {"chunk_type": "benefit", "category": "dental", "ignore_tier": true, "needs_comparison": true}

User: "Tell me about alternative medicine"
Output: {"chunk_type": "context", "category": "alternative", "ignore_tier": true, "needs_comparison": false}

Output ONLY the JSON object, no explanation.`

// FormatRetrievedChunks renders the retrieved chunks as the context
// block of the answering prompt, with a scope header per chunk so the
// model can tell which HMO and tier each piece of text applies to.
func FormatRetrievedChunks(chunks []datatypes.RetrievedChunk, lang string) string {
	if len(chunks) == 0 {
		if lang == datatypes.LanguageHebrew {
			return "לא נמצא מידע רלוונטי בבסיס הידע."
		}
		return "No relevant information found in the knowledge base."
	}

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		m := c.Metadata
		var header string
		if lang == datatypes.LanguageHebrew {
			switch m.Type {
			case datatypes.ChunkTypeContext:
				header = fmt.Sprintf("[הקשר כללי - %s]", m.Category)
			case datatypes.ChunkTypeBenefit:
				header = fmt.Sprintf("[שירות: %s | קופה: %s | מסלול: %s]",
					m.Service, hmoDisplay(m.HMO, lang), tierDisplay(m.Tier, lang))
			case datatypes.ChunkTypeContact:
				header = fmt.Sprintf("[פרטי התקשרות - %s | %s]", m.Category, hmoDisplay(m.HMO, lang))
			default:
				header = "[מידע]"
			}
		} else {
			switch m.Type {
			case datatypes.ChunkTypeContext:
				header = fmt.Sprintf("[General Context - %s]", m.Category)
			case datatypes.ChunkTypeBenefit:
				header = fmt.Sprintf("[Service: %s | HMO: %s | Tier: %s]",
					m.Service, hmoDisplay(m.HMO, lang), tierDisplay(m.Tier, lang))
			case datatypes.ChunkTypeContact:
				header = fmt.Sprintf("[Contact Info - %s | %s]", m.Category, hmoDisplay(m.HMO, lang))
			default:
				header = "[Information]"
			}
		}
		parts = append(parts, header+"\n"+c.Content+"\n")
	}
	return strings.Join(parts, "\n---\n")
}

// BuildAnswerPrompt assembles the grounded answering prompt: the user's
// profile, the behavior rules, and the retrieved context.
func BuildAnswerPrompt(profile datatypes.UserProfile, retrievedContext, lang string) string {
	age := 0
	if profile.Age != nil {
		age = *profile.Age
	}

	if lang == datatypes.LanguageHebrew {
		hmo := hmoDisplay(profile.HMO, lang)
		tier := tierDisplay(profile.Tier, lang)
		return fmt.Sprintf(`אתה עוזר מומחה לשירותי בריאות שעונה על שאלות על בסיס בסיס הידע שסופק.

## פרופיל המשתמש:
- שם: %s
- גיל: %d
- מין: %s
- קופת חולים: %s
- מסלול ביטוח: %s

## כללי התנהגות:
1. **ענה רק על בסיס המידע שסופק למטה** - אל תמציא מידע או תשתמש בידע כללי
2. **התמקד במסלול של המשתמש** - המשתמש במסלול %s של %s
3. **צטט מספרים מדויקים** - אחוזי הנחה, מחירים, מגבלות - הכל חייב להיות מדויק
4. **אם אין מידע** - אמור בבירור "אין לי מידע על כך" במקום לנחש
5. **השווה בין מסלולים** - אם המשתמש שואל, הראה הבדלים בין זהב/כסף/ארד
6. **השווה בין קופות** - אם המשתמש שואל, הראה הבדלים בין מכבי/מאוחדת/כללית

## בסיס הידע (מידע רלוונטי שנמשך):
%s

## הוראות תשובה:
- היה ברור וקצר
- התחל עם המידע הרלוונטי ביותר למסלול של המשתמש
- אם יש מספרים (אחוזים, מחירים), ציין אותם במדויק
- אם המשתמש שואל "כמה עולה X?" - תן תשובה ספציפית למסלול שלו
- אם המשתמש שואל "מה ההבדל בין X ל-Y?" - השווה באופן ישיר

זכור: אתה משרת משתמש ב**%s %s** - זה המידע החשוב ביותר עבורו!`,
			profile.Name, age, profile.Gender, hmo, tier, tier, hmo, retrievedContext, hmo, tier)
	}

	hmo := hmoDisplay(profile.HMO, lang)
	tier := tierDisplay(profile.Tier, lang)
	return fmt.Sprintf(`You are a medical services expert assistant that answers questions based on the provided knowledge base.

## User Profile:
- Name: %s
- Age: %d
- Gender: %s
- HMO: %s
- Insurance Tier: %s

## Behavior Rules:
1. **Answer only based on the information provided below** - don't invent information or use general knowledge
2. **Focus on the user's tier** - The user has %s tier with %s
3. **Quote exact numbers** - discounts, prices, limits - everything must be accurate
4. **If there's no information** - clearly say "I don't have information about that" instead of guessing
5. **Compare between tiers** - if the user asks, show differences between Gold/Silver/Bronze
6. **Compare between HMOs** - if the user asks, show differences between Maccabi/Meuhedet/Clalit

## Knowledge Base (retrieved relevant information):
%s

## Response Instructions:
- Be clear and concise
- Start with the most relevant information for the user's tier
- If there are numbers (percentages, prices), state them exactly
- If the user asks "How much does X cost?" - give a specific answer for their tier
- If the user asks "What's the difference between X and Y?" - compare directly

Remember: You're serving a user with **%s %s** - this is the most important information for them!`,
		profile.Name, age, profile.Gender, hmo, tier, tier, hmo, retrievedContext, hmo, tier)
}
