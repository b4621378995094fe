// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package qa

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/refualabs/medassist/services/llm"
	"github.com/refualabs/medassist/services/medchat/datatypes"
)

func TestPlanQuery_ParsesPlan(t *testing.T) {
	gw := &mockGateway{replies: []string{
		`{"chunk_type": "contact", "category": "dental", "ignore_tier": true, "needs_comparison": false}`,
	}}

	plan := PlanQuery(context.Background(), gw, "How can I contact the dental department?")

	assert.Equal(t, datatypes.ChunkTypeContact, plan.ChunkType)
	assert.Equal(t, "dental", plan.Category)
	assert.True(t, plan.IgnoreTier)
	assert.False(t, plan.NeedsComparison)
}

func TestPlanQuery_StripsMarkdownFences(t *testing.T) {
	gw := &mockGateway{replies: []string{
		"```json\n{\"chunk_type\": \"benefit\", \"category\": \"alternative\", \"ignore_tier\": false, \"needs_comparison\": false}\n```",
	}}

	plan := PlanQuery(context.Background(), gw, "How much is acupuncture?")

	assert.Equal(t, datatypes.ChunkTypeBenefit, plan.ChunkType)
	assert.Equal(t, "alternative", plan.Category)
}

func TestPlanQuery_UnparsableReplyFallsBackToPermissive(t *testing.T) {
	gw := &mockGateway{replies: []string{"I think you should filter by dental."}}

	plan := PlanQuery(context.Background(), gw, "dental question")

	assert.Equal(t, datatypes.PermissiveQueryPlan(), plan)
	assert.False(t, plan.IgnoreTier, "permissive plan still applies the tier filter")
}

func TestPlanQuery_UpstreamFailureFallsBackToPermissive(t *testing.T) {
	gw := &mockGateway{chatErr: llm.NewUpstreamError(503, "unavailable")}

	plan := PlanQuery(context.Background(), gw, "dental question")

	assert.Equal(t, datatypes.PermissiveQueryPlan(), plan)
}
