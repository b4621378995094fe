// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the turn-level request and response types for the
// stateless chat endpoint. For the user profile see profile.go; for
// knowledge-base retrieval types see knowledge.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message
	// content, checked in bytes (not runes) to bound memory use.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// DefaultMaxHistory is the number of most-recent conversation turns
	// kept when truncating caller-supplied history to bound prompt size.
	DefaultMaxHistory = 15
)

// Conversation phases. The phase is derived freshly every turn from the
// caller-supplied profile; the server holds no conversation state.
const (
	PhaseCollection = "collection"
	PhaseQA         = "qa"
)

// Supported conversation languages.
const (
	LanguageHebrew  = "he"
	LanguageEnglish = "en"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the MaxMessageContentBytes limit on string
// fields. Byte length is checked, not rune count.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Messages
// =============================================================================

// Message is a single turn in the conversation history.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required,maxbytes"`
}

// =============================================================================
// Chat Request
// =============================================================================

// ChatRequest is the body of POST /v1/chat.
//
// # Description
//
// The service is stateless: every turn carries the full conversation
// context. The caller owns the profile and history and must send back the
// profile returned by the previous response unchanged.
//
// # Fields
//
//   - RequestID: Optional. UUID v4 for tracing; generated when absent.
//   - Message: Required. The current user utterance.
//   - UserData: The profile as returned by the previous turn. A zero
//     value starts a fresh collection conversation.
//   - History: Ordered prior turns, oldest first. Truncated server-side
//     to the most recent MaxHistory turns.
//   - Language: Conversation language tag, "he" (default) or "en".
type ChatRequest struct {
	RequestID string      `json:"request_id,omitempty" validate:"omitempty,uuid4"`
	Message   string      `json:"message" validate:"required,maxbytes"`
	UserData  UserProfile `json:"user_data"`
	History   []Message   `json:"conversation_history" validate:"dive"`
	Language  string      `json:"language" validate:"omitempty,oneof=he en"`
}

// Validate validates the ChatRequest fields using the package validator.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults populates the request id and language, and truncates the
// history to the most recent maxHistory turns. Truncation always keeps
// the newest turns.
func (r *ChatRequest) EnsureDefaults(maxHistory int) {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
	if r.Language == "" {
		r.Language = LanguageHebrew
	}
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if len(r.History) > maxHistory {
		r.History = r.History[len(r.History)-maxHistory:]
	}
}

// RecentHistory returns the last n turns of the history (fewer if the
// history is shorter). Used by the extraction stage, which only needs
// enough context to attribute short answers like "30" to a field.
func (r *ChatRequest) RecentHistory(n int) []Message {
	if len(r.History) <= n {
		return r.History
	}
	return r.History[len(r.History)-n:]
}

// =============================================================================
// Chat Response
// =============================================================================

// Source is one knowledge-base citation attached to a Q&A answer.
//
// RelevanceScore is derived from the chunk's cosine distance via
// max(0, 1 - distance/2), so it always falls in [0, 1] and decreases
// monotonically with distance.
type Source struct {
	Type           string  `json:"type"`
	Category       string  `json:"category"`
	Service        string  `json:"service,omitempty"`
	HMO            string  `json:"hmo"`
	Tier           string  `json:"tier"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ChatResponse is the body returned by POST /v1/chat.
//
// UserData is the updated profile the caller must round-trip on the next
// turn. MissingFields is populated during collection, Sources during Q&A.
// Metadata carries free-form observability values (token counts,
// retrieval strategy, chunk counts).
type ChatResponse struct {
	ResponseID    string         `json:"response_id"`
	RequestID     string         `json:"request_id,omitempty"`
	Response      string         `json:"response"`
	Phase         string         `json:"phase"`
	UserData      UserProfile    `json:"user_data"`
	MissingFields []string       `json:"missing_fields"`
	Sources       []Source       `json:"sources"`
	Metadata      map[string]any `json:"metadata"`
}

// NewChatResponse creates a ChatResponse with a generated response id,
// echoing the request id for correlation. Slice fields are initialized
// so the JSON encodes them as [] rather than null.
func NewChatResponse(requestID, phase, text string, profile UserProfile) *ChatResponse {
	return &ChatResponse{
		ResponseID:    uuid.New().String(),
		RequestID:     requestID,
		Response:      text,
		Phase:         phase,
		UserData:      profile,
		MissingFields: []string{},
		Sources:       []Source{},
		Metadata:      map[string]any{},
	}
}

// =============================================================================
// Health Response
// =============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string            `json:"status"` // healthy, degraded, unhealthy
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}
