package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

const defaultDuckDuckGoBaseURL = "https://api.duckduckgo.com"

// DuckDuckGo queries the Instant Answer API: abstracts plus related
// topics, keyless, general-purpose.
type DuckDuckGo struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

var _ Provider = (*DuckDuckGo)(nil)

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]entity.WebResult, error) {
	base := d.BaseURL
	if base == "" {
		base = defaultDuckDuckGoBaseURL
	}
	if limit <= 0 {
		limit = 10
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}

	hc := d.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("duckduckgo status: %d", resp.StatusCode)
	}

	var dr ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, err
	}

	out := make([]entity.WebResult, 0, limit)
	if dr.AbstractText != "" {
		out = append(out, entity.WebResult{
			Title:   dr.Heading,
			Snippet: strings.TrimSpace(dr.AbstractText),
			URL:     dr.AbstractURL,
		})
	}
	appendTopics(&out, dr.RelatedTopics, limit)
	return out, nil
}

// appendTopics flattens the nested related-topic groups until limit.
func appendTopics(out *[]entity.WebResult, topics []ddgTopic, limit int) {
	for _, topic := range topics {
		if len(*out) >= limit {
			return
		}
		if len(topic.Topics) > 0 {
			appendTopics(out, topic.Topics, limit)
			continue
		}
		if topic.Text == "" {
			continue
		}
		*out = append(*out, entity.WebResult{
			Title:   topicTitle(topic.Text),
			Snippet: strings.TrimSpace(topic.Text),
			URL:     topic.FirstURL,
		})
	}
}

// topicTitle extracts the leading phrase of a related-topic text as title.
func topicTitle(text string) string {
	if idx := strings.Index(text, " - "); idx > 0 {
		return text[:idx]
	}
	if len(text) > 60 {
		return strings.TrimSpace(text[:60])
	}
	return text
}
