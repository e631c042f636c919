package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	MaxResults  = 12
	QuerySuffix = " music"
)

type YouTubeClient struct {
	apiKey    string
	searchURL string
	http      *http.Client
}

func NewYouTubeClient(apiKey, searchURL string, timeout time.Duration) *YouTubeClient {
	return &YouTubeClient{
		apiKey:    apiKey,
		searchURL: searchURL,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

type ytSearchResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
			Thumbnails   struct {
				High struct {
					URL string `json:"url"`
				} `json:"high"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

// Search queries the YouTube Data API for videos matching query with the music
// qualifier appended. An error object in the body yields *APIError even when the
// status is not 2xx or items are also present.
func (c *YouTubeClient) Search(ctx context.Context, query string) ([]SearchResultItem, error) {
	val := url.Values{}
	val.Set("part", "snippet")
	val.Set("type", "video")
	val.Set("q", query+QuerySuffix)
	val.Set("maxResults", strconv.Itoa(MaxResults))
	val.Set("key", c.apiKey)
	val.Set("order", "relevance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+val.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read youtube response: %w", err)
	}

	var body ytSearchResponse
	decodeErr := json.Unmarshal(raw, &body)
	if decodeErr == nil && body.Error != nil {
		msg := body.Error.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, &APIError{Code: body.Error.Code, Message: msg}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("youtube status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode youtube response: %w", decodeErr)
	}

	out := make([]SearchResultItem, 0, len(body.Items))
	for _, it := range body.Items {
		item := SearchResultItem{
			Title:     it.Snippet.Title,
			Thumbnail: it.Snippet.Thumbnails.High.URL,
			VideoID:   it.ID.VideoID,
			Channel:   it.Snippet.ChannelTitle,
		}
		if item.Title == "" || item.Thumbnail == "" || item.VideoID == "" || item.Channel == "" {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}
