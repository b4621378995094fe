// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collection

import (
	"log/slog"

	"github.com/refualabs/medassist/services/medchat/datatypes"
)

// MergeValidated overlays an extracted update onto the current profile,
// normalizes the result, and validates every field the update touched.
//
// Fields that fail validation are reverted to their previous value and
// reported in the returned problem map (field name to human-readable
// message). Validation never fails the turn: problems are folded into
// the next conversational reply instead.
//
// The operation is deterministic and idempotent: merging the same
// update twice yields the same profile and the same problems.
func MergeValidated(current datatypes.UserProfile, update datatypes.ProfileUpdate) (datatypes.UserProfile, map[string]string) {
	merged := current.Clone()

	if update.Name != nil {
		merged.Name = *update.Name
	}
	if update.ID != nil {
		merged.ID = *update.ID
	}
	if update.Gender != nil {
		merged.Gender = *update.Gender
	}
	if update.Age != nil {
		age := *update.Age
		merged.Age = &age
	}
	if update.HMO != nil {
		merged.HMO = *update.HMO
	}
	if update.HMOCard != nil {
		merged.HMOCard = *update.HMOCard
	}
	if update.Tier != nil {
		merged.Tier = *update.Tier
	}

	merged.Normalize()

	problems := make(map[string]string)
	for _, field := range update.TouchedFields() {
		if msg := merged.ValidateField(field); msg != "" {
			problems[field] = msg
		}
	}

	if len(problems) == 0 {
		return merged, nil
	}

	// Invalid fields keep their previous values.
	for field := range problems {
		revertField(&merged, current, field)
	}
	slog.Debug("Validation problems during merge", "fields", len(problems))
	return merged, problems
}

func revertField(merged *datatypes.UserProfile, current datatypes.UserProfile, field string) {
	switch field {
	case datatypes.FieldName:
		merged.Name = current.Name
	case datatypes.FieldID:
		merged.ID = current.ID
	case datatypes.FieldGender:
		merged.Gender = current.Gender
	case datatypes.FieldAge:
		if current.Age != nil {
			age := *current.Age
			merged.Age = &age
		} else {
			merged.Age = nil
		}
	case datatypes.FieldHMO:
		merged.HMO = current.HMO
	case datatypes.FieldHMOCard:
		merged.HMOCard = current.HMOCard
	case datatypes.FieldTier:
		merged.Tier = current.Tier
	}
}
