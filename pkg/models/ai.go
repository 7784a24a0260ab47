package models

import (
	"context"
	"fmt"
)

// AIProvider is the core interface that all language-model integrations must implement.
// Callers depend on this interface, never on a concrete provider.
type AIProvider interface {
	// ClassifyPhishing scores a piece of text for phishing indicators.
	ClassifyPhishing(ctx context.Context, req PhishingRequest) (Verdict, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// ContentType tags the kind of text submitted for phishing analysis.
type ContentType string

const (
	ContentURL     ContentType = "url"
	ContentEmail   ContentType = "email"
	ContentMessage ContentType = "message"
)

// ParseContentType converts a raw string into a ContentType.
func ParseContentType(s string) (ContentType, error) {
	switch ct := ContentType(s); ct {
	case ContentURL, ContentEmail, ContentMessage:
		return ct, nil
	}
	return "", fmt.Errorf("unknown content type %q: must be one of url, email, message", s)
}

// PhishingRequest is the input to a text scoring operation.
type PhishingRequest struct {
	Type    ContentType `json:"type"    validate:"required,oneof=url email message"`
	Content string      `json:"content" validate:"required,min=1"`
}
