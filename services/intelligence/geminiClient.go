// File: services/intelligence/geminiClient.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"unmute/models"

	genai "github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type GeminiGateway struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
	logger  *zap.Logger
}

func NewGeminiGateway(ctx context.Context, apiKey, modelName string, timeout time.Duration, logger *zap.Logger) (*GeminiGateway, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: GEMINI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = genai.NewUserContent(genai.Text(SystemPrompt))
	model.SetTemperature(temperature)
	model.SetTopK(topK)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(maxOutputTokens)

	return &GeminiGateway{client: client, model: model, timeout: timeout, logger: logger}, nil
}

// Send replays all but the last turn as chat history and sends the last one.
func (g *GeminiGateway) Send(ctx context.Context, history []models.Turn) (string, error) {
	if len(history) == 0 {
		return "", &GatewayError{Reason: ReasonUnknown, Err: errors.New("empty history")}
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	cs := g.model.StartChat()
	for _, turn := range history[:len(history)-1] {
		cs.History = append(cs.History, &genai.Content{
			Role:  geminiRole(turn.Role),
			Parts: []genai.Part{genai.Text(turn.Text)},
		})
	}

	last := history[len(history)-1]
	resp, err := cs.SendMessage(ctx, genai.Text(last.Text))
	if err != nil {
		reason := classifyGemini(err)
		g.logger.Warn("gemini generate error", zap.String("reason", string(reason)), zap.Error(err))
		return "", &GatewayError{Reason: reason, Err: err}
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if textPart, ok := part.(genai.Text); ok {
				sb.WriteString(string(textPart))
			}
		}
	}
	if sb.Len() == 0 {
		return "", &GatewayError{Reason: ReasonUnknown, Err: errors.New("gemini returned no text")}
	}
	return sb.String(), nil
}

func (g *GeminiGateway) Close() error {
	return g.client.Close()
}

func geminiRole(s models.Sender) string {
	if s == models.SenderAssistant {
		return "model"
	}
	return "user"
}

func classifyGemini(err error) Reason {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return ReasonQuotaExceeded
	case codes.Unauthenticated, codes.PermissionDenied:
		return ReasonAPIKeyInvalid
	case codes.Unavailable:
		return ReasonNetworkUnavailable
	}
	return Classify(err)
}
