// Package transcript fetches YouTube caption tracks, caches them with a TTL,
// and extracts timestamp-anchored snippets for prompt grounding.
package transcript

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Entry is one timed caption cue.
type Entry struct {
	Text       string `json:"text"`
	OffsetMs   int64  `json:"offset"`
	DurationMs int64  `json:"duration"`
}

// Provider fetches the ordered caption cues for a video.
type Provider interface {
	Fetch(ctx context.Context, videoID string) ([]Entry, error)
}

const (
	defaultWatchBaseURL = "https://www.youtube.com"
	fetchTimeout        = 7 * time.Second
	maxPageSize         = 4 << 20 // 4MB
)

// HTTPProvider scrapes the watch page for the caption track URL and decodes
// the timedtext XML behind it.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider against the public YouTube endpoints.
func NewHTTPProvider() *HTTPProvider {
	return NewHTTPProviderWithBaseURL(defaultWatchBaseURL)
}

// NewHTTPProviderWithBaseURL creates a provider against a custom base URL
// (for testing).
func NewHTTPProviderWithBaseURL(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch returns the caption cues for videoID in broadcast order. Every
// failure is a *FetchError carrying a closed classification kind.
func (p *HTTPProvider) Fetch(ctx context.Context, videoID string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	page, err := p.get(ctx, p.baseURL+"/watch?v="+videoID)
	if err != nil {
		return nil, err
	}

	trackURL, ok := captionTrackURL(page)
	if !ok {
		return nil, &FetchError{Kind: KindNoCaptions, Msg: "no caption track for " + videoID}
	}
	// Track URLs on the watch page are relative on test fixtures and
	// absolute in production.
	if strings.HasPrefix(trackURL, "/") {
		trackURL = p.baseURL + trackURL
	}

	raw, err := p.get(ctx, trackURL)
	if err != nil {
		return nil, err
	}

	entries, err := decodeTimedText(raw)
	if err != nil {
		return nil, &FetchError{Kind: KindPermanent, Msg: "decoding timedtext", Err: err}
	}
	return entries, nil
}

func (p *HTTPProvider) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindPermanent, Msg: "creating request", Err: err}
	}
	req.Header.Set("Accept-Language", "en")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return nil, &FetchError{Kind: KindTransient, Msg: "request timed out", Err: err}
		}
		return nil, &FetchError{Kind: KindTransient, Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &FetchError{Kind: KindRateLimit, Msg: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return nil, &FetchError{Kind: KindTransient, Msg: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &FetchError{Kind: KindPermanent, Msg: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Msg: "reading response", Err: err}
	}
	return body, nil
}

// captionTrackURL digs the first caption track base URL out of the watch page
// player config JSON.
func captionTrackURL(page []byte) (string, bool) {
	s := string(page)
	i := strings.Index(s, `"captionTracks":`)
	if i < 0 {
		return "", false
	}
	s = s[i:]
	j := strings.Index(s, `"baseUrl":"`)
	if j < 0 {
		return "", false
	}
	s = s[j+len(`"baseUrl":"`):]
	k := strings.IndexByte(s, '"')
	if k < 0 {
		return "", false
	}
	url := s[:k]
	url = strings.ReplaceAll(url, `\u0026`, "&")
	url = strings.ReplaceAll(url, `\/`, "/")
	return url, true
}

// timedText mirrors the XML caption document.
type timedText struct {
	XMLName xml.Name       `xml:"transcript"`
	Texts   []timedTextCue `xml:"text"`
}

type timedTextCue struct {
	Start float64 `xml:"start,attr"`
	Dur   float64 `xml:"dur,attr"`
	Body  string  `xml:",chardata"`
}

func decodeTimedText(raw []byte) ([]Entry, error) {
	var doc timedText
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(doc.Texts))
	for _, cue := range doc.Texts {
		text := strings.TrimSpace(stripMarkup(cue.Body))
		if text == "" {
			continue
		}
		entries = append(entries, Entry{
			Text:       text,
			OffsetMs:   int64(cue.Start * 1000),
			DurationMs: int64(cue.Dur * 1000),
		})
	}
	return entries, nil
}

// stripMarkup drops inline tags (<i>, <b>, line-break markup) that YouTube
// embeds in cue text, keeping only the text nodes.
func stripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	var sb strings.Builder
	tok := html.NewTokenizer(strings.NewReader(s))
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.TextToken:
			sb.Write(tok.Text())
		}
	}
}
