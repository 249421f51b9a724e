// File: services/intelligence/interface.go
package ai

import (
	"context"
	"fmt"

	"unmute/models"
)

// Gateway generates an assistant reply from the ordered conversation history.
// The last turn is the message being answered.
type Gateway interface {
	Send(ctx context.Context, history []models.Turn) (string, error)
}

// Reason is the closed set of gateway failure causes.
type Reason string

const (
	ReasonAPIKeyInvalid      Reason = "api_key_invalid"
	ReasonQuotaExceeded      Reason = "quota_exceeded"
	ReasonNetworkUnavailable Reason = "network_unavailable"
	ReasonUnknown            Reason = "unknown"
)

// GatewayError is returned by every Gateway implementation on failure.
type GatewayError struct {
	Reason Reason
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("gateway error: %s", e.Reason)
	}
	return fmt.Sprintf("gateway error (%s): %v", e.Reason, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// SystemPrompt frames every conversation.
const SystemPrompt = "You are a compassionate mental health support chatbot. Provide empathetic, supportive, and helpful responses. " +
	"Always encourage professional help when appropriate and never provide medical advice. Be kind, understanding, and non-judgmental."

// Sampling settings shared by the gateway implementations.
const (
	temperature     = 0.7
	topK            = 40
	topP            = 0.95
	maxOutputTokens = 1024
)
