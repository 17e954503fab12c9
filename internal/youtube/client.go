// Package youtube looks up video metadata through the YouTube Data API v3.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Kind classifies a metadata lookup failure.
type Kind int

const (
	KindPermanent Kind = iota
	KindTransient
	KindNotFound
	KindQuotaExceeded
)

// APIError is a failed Data API call with its classification.
type APIError struct {
	Kind   Kind
	Status int
	Msg    string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("youtube api: %s (status %d)", e.Msg, e.Status)
	}
	return "youtube api: " + e.Msg
}

// VideoDetails is the metadata snippet for one video.
type VideoDetails struct {
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	ChannelTitle string `json:"channel_title"`
	Description  string `json:"description"`
	PublishedAt  string `json:"published_at"`
}

const (
	defaultBaseURL = "https://www.googleapis.com/youtube/v3"
	lookupTimeout  = 7 * time.Second
)

// Client calls the Data API videos.list endpoint. Lookups are single-shot;
// retry policy belongs to the caller.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey string) *Client {
	return NewClientWithBaseURL(apiKey, defaultBaseURL)
}

func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: lookupTimeout},
	}
}

type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
			Description  string `json:"description"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// VideoDetails fetches the snippet part for one video id.
func (c *Client) VideoDetails(ctx context.Context, videoID string) (VideoDetails, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("id", videoID)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos?"+q.Encode(), nil)
	if err != nil {
		return VideoDetails{}, &APIError{Kind: KindPermanent, Msg: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return VideoDetails{}, &APIError{Kind: KindTransient, Msg: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return VideoDetails{}, &APIError{Kind: KindTransient, Msg: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return VideoDetails{}, classifyStatus(resp.StatusCode, body)
	}

	var parsed videoListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return VideoDetails{}, &APIError{Kind: KindPermanent, Msg: "decoding response: " + err.Error()}
	}
	if len(parsed.Items) == 0 {
		return VideoDetails{}, &APIError{Kind: KindNotFound, Status: resp.StatusCode, Msg: "video not found: " + videoID}
	}

	item := parsed.Items[0]
	return VideoDetails{
		VideoID:      item.ID,
		Title:        item.Snippet.Title,
		ChannelTitle: item.Snippet.ChannelTitle,
		Description:  item.Snippet.Description,
		PublishedAt:  item.Snippet.PublishedAt,
	}, nil
}

func classifyStatus(status int, body []byte) *APIError {
	msg := http.StatusText(status)
	reason := ""

	var parsed apiErrorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
		if len(parsed.Error.Errors) > 0 {
			reason = parsed.Error.Errors[0].Reason
		}
	}

	kind := KindPermanent
	switch {
	case reason == "quotaExceeded" || reason == "rateLimitExceeded" || status == http.StatusTooManyRequests:
		kind = KindQuotaExceeded
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status >= 500:
		kind = KindTransient
	}
	return &APIError{Kind: kind, Status: status, Msg: msg}
}
