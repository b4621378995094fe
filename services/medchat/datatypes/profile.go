// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the medchat service.
//
// This file contains the user profile collected during the onboarding
// (collection) phase. The profile is deliberately tolerant: construction
// and mutation never fail, normalization is total, and per-field
// validation is a separate queryable operation so that invalid input can
// be explained conversationally instead of rejected at the protocol level.
package datatypes

import (
	"strings"
)

// =============================================================================
// Canonical Enumerations
// =============================================================================

// Canonical HMO provider values. All accepted Hebrew/English synonyms
// normalize to one of these.
const (
	HMOMaccabi  = "maccabi"
	HMOMeuhedet = "meuhedet"
	HMOClalit   = "clalit"
)

// Canonical insurance tier values.
const (
	TierGold   = "gold"
	TierSilver = "silver"
	TierBronze = "bronze"
)

// ScopeAll is the wildcard metadata value on knowledge chunks meaning
// "applies to every HMO" or "applies to every tier". It must match any
// concrete filter value during retrieval.
const ScopeAll = "all"

// hmoSynonyms maps accepted input variants (both languages) to the
// canonical English value.
var hmoSynonyms = map[string]string{
	"maccabi":  HMOMaccabi,
	"מכבי":     HMOMaccabi,
	"meuhedet": HMOMeuhedet,
	"מאוחדת":   HMOMeuhedet,
	"clalit":   HMOClalit,
	"כללית":    HMOClalit,
}

// tierSynonyms maps accepted input variants to the canonical tier value.
var tierSynonyms = map[string]string{
	"gold":   TierGold,
	"זהב":    TierGold,
	"silver": TierSilver,
	"כסף":    TierSilver,
	"bronze": TierBronze,
	"ארד":    TierBronze,
}

// genderSynonyms maps accepted input variants to the canonical gender value.
var genderSynonyms = map[string]string{
	"male":   "male",
	"זכר":    "male",
	"female": "female",
	"נקבה":   "female",
	"other":  "other",
	"אחר":    "other",
}

// validGenders is the closed set accepted by ValidateField. Hebrew synonyms
// are accepted directly so that un-normalized input still validates.
var validGenders = map[string]bool{
	"male": true, "female": true, "other": true,
	"זכר": true, "נקבה": true, "אחר": true,
}

// NormalizeHMO maps any accepted HMO synonym to its canonical value.
//
// Normalization is total: unrecognized input is lower-cased and returned
// as-is, never rejected. The empty string stays empty.
func NormalizeHMO(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if canonical, ok := hmoSynonyms[strings.ToLower(v)]; ok {
		return canonical
	}
	return strings.ToLower(v)
}

// NormalizeTier maps any accepted tier synonym to its canonical value.
// Total, like NormalizeHMO.
func NormalizeTier(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if canonical, ok := tierSynonyms[strings.ToLower(v)]; ok {
		return canonical
	}
	return strings.ToLower(v)
}

// NormalizeGender maps any accepted gender synonym to its canonical value.
// Total, like NormalizeHMO.
func NormalizeGender(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if canonical, ok := genderSynonyms[strings.ToLower(v)]; ok {
		return canonical
	}
	return strings.ToLower(v)
}

// =============================================================================
// UserProfile
// =============================================================================

// Profile field names, as they appear in extraction JSON, missing-field
// lists, and validation problem maps.
const (
	FieldName    = "name"
	FieldID      = "id"
	FieldGender  = "gender"
	FieldAge     = "age"
	FieldHMO     = "hmo"
	FieldHMOCard = "hmo_card"
	FieldTier    = "tier"
)

// ProfileFieldOrder is the canonical collection order of the seven
// substantive fields. MissingFields reports in this order, and the
// collection responder asks for the first missing entry.
var ProfileFieldOrder = []string{
	FieldName, FieldID, FieldGender, FieldAge, FieldHMO, FieldHMOCard, FieldTier,
}

// UserProfile is the structured user record built up during the collection
// phase and carried read-only through the Q&A phase.
//
// # Description
//
// All fields are optional and the struct can never be in an "invalid"
// state: enumeration fields are normalized on merge, and rule violations
// are reported by ValidateField as data rather than raised as errors.
// Age is a pointer so that an explicit 0 (infant) is distinct from unset.
//
// The profile is owned by the caller: the service is stateless and returns
// the updated profile on every turn for the client to round-trip.
//
// # Fields
//
//   - Name: Full name (first and last). No automated rule beyond non-empty.
//   - ID: National ID, exactly 9 digits when valid.
//   - Gender: One of male/female/other (Hebrew synonyms accepted).
//   - Age: 0-120 inclusive. Nil means not yet collected.
//   - HMO: One of maccabi/meuhedet/clalit.
//   - HMOCard: HMO membership card number, exactly 9 digits when valid.
//   - Tier: Insurance tier, one of gold/silver/bronze.
//   - Confirmed: True once the user has explicitly accepted the summary.
type UserProfile struct {
	Name      string `json:"name,omitempty"`
	ID        string `json:"id,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Age       *int   `json:"age,omitempty"`
	HMO       string `json:"hmo,omitempty"`
	HMOCard   string `json:"hmo_card,omitempty"`
	Tier      string `json:"tier,omitempty"`
	Confirmed bool   `json:"confirmed"`
}

// Normalize applies the total normalization rules to all enumeration
// fields in place. Safe to call repeatedly; it is idempotent.
func (p *UserProfile) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.ID = strings.TrimSpace(p.ID)
	p.HMOCard = strings.TrimSpace(p.HMOCard)
	p.HMO = NormalizeHMO(p.HMO)
	p.Tier = NormalizeTier(p.Tier)
	p.Gender = NormalizeGender(p.Gender)
}

// IsComplete reports whether all seven substantive fields are present.
// Age 0 counts as present; only a nil Age is missing.
func (p *UserProfile) IsComplete() bool {
	return p.Name != "" &&
		p.ID != "" &&
		p.Gender != "" &&
		p.Age != nil &&
		p.HMO != "" &&
		p.HMOCard != "" &&
		p.Tier != ""
}

// MissingFields returns the names of the fields not yet collected, in
// canonical collection order. Empty slice when the profile is complete.
func (p *UserProfile) MissingFields() []string {
	missing := make([]string, 0, len(ProfileFieldOrder))
	for _, field := range ProfileFieldOrder {
		if !p.hasField(field) {
			missing = append(missing, field)
		}
	}
	return missing
}

func (p *UserProfile) hasField(field string) bool {
	switch field {
	case FieldName:
		return p.Name != ""
	case FieldID:
		return p.ID != ""
	case FieldGender:
		return p.Gender != ""
	case FieldAge:
		return p.Age != nil
	case FieldHMO:
		return p.HMO != ""
	case FieldHMOCard:
		return p.HMOCard != ""
	case FieldTier:
		return p.Tier != ""
	default:
		return false
	}
}

// ValidateField checks one field against its rule and returns a
// human-readable problem description, or "" if the field is valid.
//
// Unset fields always validate: a missing value is "not yet collected",
// not "wrong". The rules are:
//
//	id       digits only, length exactly 9
//	hmo_card digits only, length exactly 9
//	age      0 <= age <= 120
//	hmo      one of maccabi/meuhedet/clalit
//	tier     one of gold/silver/bronze
//	gender   one of male/female/other (Hebrew synonyms accepted)
//	name     no rule beyond non-empty (enforced conversationally)
func (p *UserProfile) ValidateField(field string) string {
	switch field {
	case FieldID:
		if p.ID != "" {
			if !isDigits(p.ID) {
				return "ID must contain only digits"
			}
			if len(p.ID) != 9 {
				return "ID must be exactly 9 digits"
			}
		}
	case FieldHMOCard:
		if p.HMOCard != "" {
			if !isDigits(p.HMOCard) {
				return "HMO card must contain only digits"
			}
			if len(p.HMOCard) != 9 {
				return "HMO card must be exactly 9 digits"
			}
		}
	case FieldAge:
		if p.Age != nil {
			if *p.Age < 0 || *p.Age > 120 {
				return "Age must be between 0 and 120"
			}
		}
	case FieldHMO:
		if p.HMO != "" {
			switch strings.ToLower(p.HMO) {
			case HMOMaccabi, HMOMeuhedet, HMOClalit:
			default:
				return "HMO must be one of: Maccabi, Meuhedet, Clalit"
			}
		}
	case FieldTier:
		if p.Tier != "" {
			switch strings.ToLower(p.Tier) {
			case TierGold, TierSilver, TierBronze:
			default:
				return "Tier must be one of: Gold, Silver, Bronze"
			}
		}
	case FieldGender:
		if p.Gender != "" && !validGenders[strings.ToLower(p.Gender)] {
			return "Gender must be one of: male, female, other"
		}
	}
	return ""
}

// Clone returns a deep copy of the profile. The Age pointer is copied by
// value so mutations of the clone never leak into the original.
func (p *UserProfile) Clone() UserProfile {
	clone := *p
	if p.Age != nil {
		age := *p.Age
		clone.Age = &age
	}
	return clone
}

// isDigits reports whether s is non-empty and consists only of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// =============================================================================
// ProfileUpdate
// =============================================================================

// ProfileUpdate is a sparse, per-turn partial update produced by the
// extraction stage. Nil pointer fields mean "not mentioned this turn".
// Values are raw model output; normalization happens at merge time.
type ProfileUpdate struct {
	Name    *string `json:"name"`
	ID      *string `json:"id"`
	Gender  *string `json:"gender"`
	Age     *int    `json:"age"`
	HMO     *string `json:"hmo"`
	HMOCard *string `json:"hmo_card"`
	Tier    *string `json:"tier"`
}

// IsEmpty reports whether the update carries no fields at all.
func (u *ProfileUpdate) IsEmpty() bool {
	return u.Name == nil && u.ID == nil && u.Gender == nil && u.Age == nil &&
		u.HMO == nil && u.HMOCard == nil && u.Tier == nil
}

// TouchedFields returns the names of the fields present in the update,
// in canonical field order.
func (u *ProfileUpdate) TouchedFields() []string {
	touched := make([]string, 0, 7)
	for _, field := range ProfileFieldOrder {
		switch field {
		case FieldName:
			if u.Name != nil {
				touched = append(touched, field)
			}
		case FieldID:
			if u.ID != nil {
				touched = append(touched, field)
			}
		case FieldGender:
			if u.Gender != nil {
				touched = append(touched, field)
			}
		case FieldAge:
			if u.Age != nil {
				touched = append(touched, field)
			}
		case FieldHMO:
			if u.HMO != nil {
				touched = append(touched, field)
			}
		case FieldHMOCard:
			if u.HMOCard != nil {
				touched = append(touched, field)
			}
		case FieldTier:
			if u.Tier != nil {
				touched = append(touched, field)
			}
		}
	}
	return touched
}
