// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collection

import (
	"fmt"
	"strings"

	"github.com/refualabs/medassist/services/medchat/datatypes"
)

// CompletionSentinel is the exact marker the model emits when the user
// explicitly confirms the collected profile. It is stripped from the
// reply before the response is returned.
const CompletionSentinel = "COLLECTION_COMPLETE"

// Greeting messages for the first turn of a conversation.
const (
	greetingHe = `👋 שלום! אני העוזר הרפואי הדיגיטלי שלך.

אני כאן כדי לעזור לך למצוא מידע מדויק ומותאם אישית על שירותי בריאות של קופת החולים שלך.

לפני שנתחיל, אני צריך לאסוף כמה פרטים בסיסיים כדי לספק לך את המידע הרלוונטי ביותר.

בואו נתחיל - מה שמך המלא?`

	greetingEn = `👋 Hello! I'm your digital medical assistant.

I'm here to help you find accurate and personalized information about your HMO's health services.

Before we begin, I need to collect some basic information so I can provide you with the most relevant details.

Let's get started - what is your full name?`
)

// Transition messages used when the confirmation marker arrives with no
// accompanying text.
const (
	transitionHe = "מעולה! הפרטים שלך נשמרו. כעת אתה יכול לשאול אותי כל שאלה על שירותי בריאות של קופת החולים שלך."
	transitionEn = "Perfect! Your information has been saved. You can now ask me any questions about your HMO's health services."
)

// GreetingMessage returns the canned introduction for the given language.
func GreetingMessage(language string) string {
	if language == datatypes.LanguageEnglish {
		return greetingEn
	}
	return greetingHe
}

// TransitionMessage returns the canned post-confirmation message for the
// given language.
func TransitionMessage(language string) string {
	if language == datatypes.LanguageEnglish {
		return transitionEn
	}
	return transitionHe
}

// extractionPrompt is the system prompt for the silent extraction step.
// The model reads the recent turns and outputs only a JSON object with
// any fields the user mentioned, already normalized.
const extractionPrompt = `Extract and normalize user information from the conversation and output ONLY valid JSON.

**IMPORTANT**: Analyze the last 2-3 turns of conversation for context. If the bot asked "How old are you?" and user said "30", understand that 30 refers to age.

Output format (include only fields mentioned):
{
  "name": "string or null",
  "id": "string or null",
  "gender": "string or null",
  "age": number or null,
  "hmo": "string or null",
  "hmo_card": "string or null",
  "tier": "string or null"
}

Normalization Rules:
- **HMO**: Normalize to lowercase English: "Maccabi"/"מכבי" → "maccabi", "Meuhedet"/"מאוחדת" → "meuhedet", "Clalit"/"כללית" → "clalit"
- **Tier**: Normalize to lowercase English: "Gold"/"זהב" → "gold", "Silver"/"כסף" → "silver", "Bronze"/"ארד" → "bronze"
- **Gender**: Normalize to lowercase English: "Male"/"זכר" → "male", "Female"/"נקבה" → "female", "Other"/"אחר" → "other"
- **ID/HMO card**: Extract only digits, remove spaces/dashes
- **Age**: Extract number only
- **Name**: Keep as provided (capitalized properly)

Only include fields that the user explicitly mentioned in this turn or recent context.
Return null for fields not mentioned.
Output ONLY the JSON object, no explanation.

Examples:

User: "My name is Ron Isakov"
Output: {"name": "Ron Isakov", "id": null, "gender": null, "age": null, "hmo": null, "hmo_card": null, "tier": null}

Bot: "How old are you?"
User: "30"
Output: {"name": null, "id": null, "gender": null, "age": 30, "hmo": null, "hmo_card": null, "tier": null}

User: "I'm with מכבי זהב"
Output: {"name": null, "id": null, "gender": null, "age": null, "hmo": "maccabi", "hmo_card": null, "tier": "gold"}

User: "My ID is 123-456-789"
Output: {"name": null, "id": "123456789", "gender": null, "age": null, "hmo": null, "hmo_card": null, "tier": null}`

// BuildGenerationPrompt assembles the system prompt for the visible
// response step: the collection bot's rules, the validated profile
// state, any validation problems to explain, and the instruction for
// what to do next.
func BuildGenerationPrompt(profile datatypes.UserProfile, problems map[string]string, language string) string {
	var b strings.Builder

	if language == datatypes.LanguageEnglish {
		b.WriteString(generationRulesEn)
		writeProfileStatusEn(&b, profile)
		if len(problems) > 0 {
			b.WriteString("\n## Validation Errors:\n")
			for _, field := range datatypes.ProfileFieldOrder {
				if msg, ok := problems[field]; ok {
					fmt.Fprintf(&b, "- %s: %s\n", field, msg)
				}
			}
		}
		missing := profile.MissingFields()
		switch {
		case len(problems) > 0:
			b.WriteString("\n**Instructions**: Gently explain all issues and ask for the fields again.\n")
		case len(missing) > 0:
			fmt.Fprintf(&b, "\n**Instructions**: Ask for the next missing field: %s\n", missing[0])
		default:
			b.WriteString(confirmationInstructionsEn)
		}
		return b.String()
	}

	b.WriteString(generationRulesHe)
	writeProfileStatusHe(&b, profile)
	if len(problems) > 0 {
		b.WriteString("\n## שגיאות אימות:\n")
		for _, field := range datatypes.ProfileFieldOrder {
			if msg, ok := problems[field]; ok {
				fmt.Fprintf(&b, "- %s: %s\n", field, msg)
			}
		}
	}
	missing := profile.MissingFields()
	switch {
	case len(problems) > 0:
		b.WriteString("\n**הוראות**: הסבר בעדינות את כל הבעיות ובקש את השדות שוב.\n")
	case len(missing) > 0:
		fmt.Fprintf(&b, "\n**הוראות**: שאל על השדה החסר הבא: %s\n", missing[0])
	default:
		b.WriteString(confirmationInstructionsHe)
	}
	return b.String()
}

const generationRulesHe = `## תפקיד:
אתה רובוט איסוף מידע. תפקידך: לאסוף 7 שדות בלבד.

## כללים קריטיים:
1. **אכיפת שפה**: אם המשתמש כותב באנגלית, אמור: "נראה שאתה כותב באנגלית. אנא לחץ על 'Start Over' בסרגל הצד ובחר English."

2. **מה מותר ומה אסור**:
   - **מותר**: ענה רק על שאלות הבהרה על השדה שאתה מבקש עכשיו (למשל: "מה זה tier?" כשאתה שואל על tier)
   - **אסור**: שאלות כלליות, רפואיות לא קשורות, שיחת חולין, או שאלות על שדות אחרים
   - **דחייה**: אם שאלה אסורה, אמור: "אני רובוט איסוף מידע בלבד. לא אוכל לענות כרגע. אוכל לעזור רק אחרי הרישום. בואו נמשיך - [שאל על השדה החסר]"

3. **טיפול בתיקונים בשלב האישור**:
   - אם המשתמש מתקן שדה → עדכן, הצג סיכום מעודכן, שאל אישור שוב
   - אל תכתוב COLLECTION_COMPLETE עד אישור מפורש (כן/נכון/אישור)

## המצב הנוכחי:
`

const generationRulesEn = `## Role:
You are an information collection bot. Your task: collect 7 fields only.

## Critical Rules:
1. **Language Enforcement**: If the user writes in Hebrew, say: "It looks like you're writing in Hebrew. Please click 'Start Over' in the sidebar and select עברית."

2. **What You Can and Cannot Answer**:
   - **CAN answer**: Only clarification questions about the current field you're asking for (e.g., "What is tier?" when you're asking for tier)
   - **CANNOT answer**: General questions, unrelated medical questions, casual chat, or questions about other fields
   - **Rejection**: If forbidden, say: "I'm an information collection bot only. I cannot answer right now. I can help only after registration. Let's continue - [ask for the missing field]"

3. **Handling Corrections at Confirmation**:
   - If user corrects a field → Update, show updated summary, ask for confirmation again
   - Do NOT write COLLECTION_COMPLETE until explicit confirmation (yes/correct/confirm)

## Current Status:
`

const confirmationInstructionsHe = `
**הוראות קריטיות - יש לבצע בדיוק לפי הסדר הזה**:

**שלב 1 - הצג את הסיכום המלא**:
הצג את כל 7 השדות (שם, ת.ז, מין, גיל, קופת חולים, כרטיס, מסלול) ושאל: "האם כל הפרטים נכונים?"

**שלב 2 - נתח את תשובת המשתמש בדיוק**:
א. **אם המשתמש אומר**: "כן", "נכון", "אישור", "בסדר", "correct", "yes" → כתוב בדיוק 'COLLECTION_COMPLETE' בתשובה

ב. **אם המשתמש כותב ערך של שדה** (ללא שאלה) → זהו תיקון!
   דוגמאות לתיקון:
   - "מסלול כסף" → עדכן tier ל-silver
   - "גילי 40" → עדכן age ל-40
   - "קוראים לי דוד" → עדכן name ל-דוד
   **פעולה**: עדכן את השדה המתאים, הצג סיכום מעודכן, וחזור לשלב 1 (שאל "האם כל הפרטים נכונים?" שוב)

ג. **אם המשתמש שואל שאלה** (יש סימן שאלה או מילת שאלה כמו "מה", "למה", "איך") → סרב!
   "אני רובוט איסוף מידע בלבד ולא יכול לענות על שאלות ברגע זה. נא לאשר את הפרטים או לתקן אם יש טעות."

**זכור**: אל תכתוב 'COLLECTION_COMPLETE' אם המשתמש תיקן שדה! חזור לשלב 1 ושאל אישור שוב.
`

const confirmationInstructionsEn = `
**Critical Instructions - Follow This Exact Order**:

**Step 1 - Show Complete Summary**:
Display all 7 fields (name, ID, gender, age, HMO, card, tier) and ask: "Is all the information correct?"

**Step 2 - Analyze User Response Precisely**:
a. **If user says**: "yes", "correct", "confirm", "ok" → Write exactly 'COLLECTION_COMPLETE' in response

b. **If user writes a field value** (without a question) → This is a correction!
   Examples of corrections:
   - "tier silver" → update tier to silver
   - "age 40" → update age to 40
   - "my name is David" → update name to David
   - "maccabi" → update hmo to maccabi
   How to detect correction: If user writes field name + value (e.g., "tier silver") or just value ("silver") → It's a correction!
   **Action**: Update the appropriate field, show updated summary, and go back to Step 1 (ask "Is all the information correct?" again)

c. **If user asks a question** (has question mark or question words like "what", "why", "how") → Refuse!
   "I'm an information collection bot only and cannot answer questions right now. Please confirm the details or correct if there's an error."

**Remember**: Do NOT write 'COLLECTION_COMPLETE' if user corrected a field! Go back to Step 1 and ask for confirmation again.
`

func writeProfileStatusHe(b *strings.Builder, p datatypes.UserProfile) {
	if p.Name != "" {
		fmt.Fprintf(b, "✓ שם: %s\n", p.Name)
	}
	if p.ID != "" {
		fmt.Fprintf(b, "✓ ת.ז: %s\n", p.ID)
	}
	if p.Gender != "" {
		fmt.Fprintf(b, "✓ מין: %s\n", p.Gender)
	}
	if p.Age != nil {
		fmt.Fprintf(b, "✓ גיל: %d\n", *p.Age)
	}
	if p.HMO != "" {
		fmt.Fprintf(b, "✓ קופת חולים: %s\n", p.HMO)
	}
	if p.HMOCard != "" {
		fmt.Fprintf(b, "✓ כרטיס קופת חולים: %s\n", p.HMOCard)
	}
	if p.Tier != "" {
		fmt.Fprintf(b, "✓ מסלול: %s\n", p.Tier)
	}
}

func writeProfileStatusEn(b *strings.Builder, p datatypes.UserProfile) {
	if p.Name != "" {
		fmt.Fprintf(b, "✓ Name: %s\n", p.Name)
	}
	if p.ID != "" {
		fmt.Fprintf(b, "✓ ID: %s\n", p.ID)
	}
	if p.Gender != "" {
		fmt.Fprintf(b, "✓ Gender: %s\n", p.Gender)
	}
	if p.Age != nil {
		fmt.Fprintf(b, "✓ Age: %d\n", *p.Age)
	}
	if p.HMO != "" {
		fmt.Fprintf(b, "✓ HMO: %s\n", p.HMO)
	}
	if p.HMOCard != "" {
		fmt.Fprintf(b, "✓ HMO card: %s\n", p.HMOCard)
	}
	if p.Tier != "" {
		fmt.Fprintf(b, "✓ Tier: %s\n", p.Tier)
	}
}
