package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

const defaultWikipediaBaseURL = "https://en.wikipedia.org"

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// Wikipedia queries the MediaWiki search API. It is the encyclopedic
// first-choice provider: high-precision summaries, no API key.
type Wikipedia struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

var _ Provider = (*Wikipedia)(nil)

func (w *Wikipedia) Name() string { return "wikipedia" }

type wikipediaResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"search"`
	} `json:"query"`
}

func (w *Wikipedia) Search(ctx context.Context, query string, limit int) ([]entity.WebResult, error) {
	base := w.BaseURL
	if base == "" {
		base = defaultWikipediaBaseURL
	}
	if limit <= 0 {
		limit = 10
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/w/api.php"
	q := u.Query()
	q.Set("action", "query")
	q.Set("list", "search")
	q.Set("srsearch", query)
	q.Set("srlimit", strconv.Itoa(limit))
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if w.UserAgent != "" {
		req.Header.Set("User-Agent", w.UserAgent)
	}

	hc := w.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("wikipedia status: %d", resp.StatusCode)
	}

	var wr wikipediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, err
	}

	out := make([]entity.WebResult, 0, len(wr.Query.Search))
	for _, hit := range wr.Query.Search {
		if hit.Title == "" {
			continue
		}
		out = append(out, entity.WebResult{
			Title:   hit.Title,
			Snippet: stripMarkup(hit.Snippet),
			URL:     base + "/wiki/" + url.PathEscape(strings.ReplaceAll(hit.Title, " ", "_")),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// stripMarkup removes the searchmatch spans and entities MediaWiki embeds
// in snippets.
func stripMarkup(s string) string {
	return strings.TrimSpace(html.UnescapeString(htmlTagPattern.ReplaceAllString(s, "")))
}
