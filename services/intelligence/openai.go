package ai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"unmute/models"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIGateway talks to any OpenAI-compatible chat completion endpoint.
type OpenAIGateway struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewOpenAIGateway(apiKey, baseURL, model string, timeout time.Duration, logger *zap.Logger) (*OpenAIGateway, error) {
	if apiKey == "" {
		return nil, errors.New("openai: OPENAI_API_KEY is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGateway{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (g *OpenAIGateway) Send(ctx context.Context, history []models.Turn) (string, error) {
	if len(history) == 0 {
		return "", &GatewayError{Reason: ReasonUnknown, Err: errors.New("empty history")}
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt})
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == models.SenderAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Text})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxOutputTokens,
	})
	if err != nil {
		reason := classifyOpenAI(err)
		g.logger.Warn("openai completion error", zap.String("reason", string(reason)), zap.Error(err))
		return "", &GatewayError{Reason: reason, Err: err}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &GatewayError{Reason: ReasonUnknown, Err: errors.New("openai returned no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAI(err error) Reason {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if r := reasonForStatus(apiErr.HTTPStatusCode); r != ReasonUnknown {
			return r
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if r := reasonForStatus(reqErr.HTTPStatusCode); r != ReasonUnknown {
			return r
		}
	}
	return Classify(err)
}

func reasonForStatus(code int) Reason {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ReasonAPIKeyInvalid
	case http.StatusTooManyRequests:
		return ReasonQuotaExceeded
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ReasonNetworkUnavailable
	}
	return ReasonUnknown
}
