package ai

import (
	"context"
	"errors"
	"net"
	"strings"
)

// classificationRule maps a case-insensitive substring of an error
// description to a failure reason. Rules are checked in order.
type classificationRule struct {
	needle string
	reason Reason
}

var classificationTable = []classificationRule{
	{needle: "api key", reason: ReasonAPIKeyInvalid},
	{needle: "api_key", reason: ReasonAPIKeyInvalid},
	{needle: "quota", reason: ReasonQuotaExceeded},
	{needle: "rate limit", reason: ReasonQuotaExceeded},
	{needle: "resource exhausted", reason: ReasonQuotaExceeded},
	{needle: "network", reason: ReasonNetworkUnavailable},
	{needle: "connection", reason: ReasonNetworkUnavailable},
	{needle: "no such host", reason: ReasonNetworkUnavailable},
}

var userMessages = map[Reason]string{
	ReasonAPIKeyInvalid:      "There seems to be an issue with the API configuration. Please check back soon.",
	ReasonQuotaExceeded:      "I'm currently experiencing high demand. Please try again in a few moments.",
	ReasonNetworkUnavailable: "I'm having trouble connecting right now. Please check your internet connection and try again.",
	ReasonUnknown:            "I apologize, but I'm having trouble responding right now. Please try again.",
}

// Classify reduces any error to a Reason. Typed errors win; otherwise the
// description is matched against classificationTable.
func Classify(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}

	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.Reason != "" && gwErr.Reason != ReasonUnknown {
		return gwErr.Reason
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonNetworkUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ReasonNetworkUnavailable
	}

	return classifyText(err.Error())
}

func classifyText(desc string) Reason {
	desc = strings.ToLower(desc)
	for _, rule := range classificationTable {
		if strings.Contains(desc, rule.needle) {
			return rule.reason
		}
	}
	return ReasonUnknown
}

// UserMessage returns the chat reply shown for a failure reason.
func UserMessage(reason Reason) string {
	if msg, ok := userMessages[reason]; ok {
		return msg
	}
	return userMessages[ReasonUnknown]
}
