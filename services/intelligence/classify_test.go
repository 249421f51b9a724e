package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Reason
	}{
		{"ApiKeyText", errors.New("googleapi: API key not valid. Please pass a valid API key."), ReasonAPIKeyInvalid},
		{"QuotaText", errors.New("429: You exceeded your current quota"), ReasonQuotaExceeded},
		{"RateLimitText", errors.New("Rate limit reached for requests"), ReasonQuotaExceeded},
		{"NetworkText", errors.New("NetworkError when attempting to fetch resource"), ReasonNetworkUnavailable},
		{"DialError", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, ReasonNetworkUnavailable},
		{"Deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), ReasonNetworkUnavailable},
		{"TypedWins", &GatewayError{Reason: ReasonQuotaExceeded, Err: errors.New("network blip")}, ReasonQuotaExceeded},
		{"Unclassified", errors.New("candidate blocked for safety"), ReasonUnknown},
		{"Nil", nil, ReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestUserMessage_DistinctPerReason(t *testing.T) {
	seen := map[string]Reason{}
	for _, r := range []Reason{ReasonAPIKeyInvalid, ReasonQuotaExceeded, ReasonNetworkUnavailable, ReasonUnknown} {
		msg := UserMessage(r)
		assert.NotEmpty(t, msg)
		_, dup := seen[msg]
		assert.False(t, dup, "reason %s reuses another reason's message", r)
		seen[msg] = r
	}
	assert.Equal(t, UserMessage(ReasonUnknown), UserMessage(Reason("something-new")))
}

func TestClassifyOpenAI_StatusCodes(t *testing.T) {
	assert.Equal(t, ReasonAPIKeyInvalid, classifyOpenAI(&openai.APIError{HTTPStatusCode: 401, Message: "bad"}))
	assert.Equal(t, ReasonQuotaExceeded, classifyOpenAI(&openai.APIError{HTTPStatusCode: 429, Message: "slow down"}))
	assert.Equal(t, ReasonNetworkUnavailable, classifyOpenAI(&openai.RequestError{HTTPStatusCode: 503, Err: errors.New("upstream")}))
	assert.Equal(t, ReasonQuotaExceeded, classifyOpenAI(&openai.APIError{HTTPStatusCode: 400, Message: "insufficient quota"}))
}

func TestStubGateway_ScriptThenFallback(t *testing.T) {
	quota := &GatewayError{Reason: ReasonQuotaExceeded}
	g := NewStubGateway(StubReply{Text: "first"}, StubReply{Err: quota})

	got, err := g.Send(context.Background(), nil)
	assert.NoError(t, err)
	assert.Equal(t, "first", got)

	_, err = g.Send(context.Background(), nil)
	assert.ErrorIs(t, err, quota)

	got, err = g.Send(context.Background(), nil)
	assert.NoError(t, err)
	assert.Equal(t, g.Fallback, got)
	assert.Len(t, g.Calls(), 3)
}
