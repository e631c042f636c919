package provider

import (
	"context"
	"fmt"
)

// SearchResultItem is one projected search hit. All fields are non-empty.
type SearchResultItem struct {
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"` // high quality thumbnail URL
	VideoID   string `json:"videoId"`
	Channel   string `json:"channel"`
}

type Provider interface {
	Search(ctx context.Context, query string) ([]SearchResultItem, error)
}

// APIError is an error object embedded in a provider response body.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("youtube api error %d: %s", e.Code, e.Message)
	}
	return "youtube api error: " + e.Message
}
