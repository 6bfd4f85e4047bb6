// Package osuapi is the client for the external ranking source: the osu! v2
// API's score rankings, paginated by a numeric cursor, behind an OAuth
// client-credentials token.
package osuapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rankline/scorerank/pkg/metrics"
	"github.com/rankline/scorerank/pkg/modes"
	"github.com/rankline/scorerank/pkg/utils"
)

const (
	DefaultBaseURL  = "https://osu.ppy.sh/api/v2"
	DefaultTokenURL = "https://osu.ppy.sh/oauth/token"
)

// Opts configures a Client.
type Opts struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client fetches ranking pages. Every network call is bounded by the
// configured per-call timeout.
type Client struct {
	baseURL string
	client  *http.Client
	tokens  *tokenSource
}

// RankingUser is the user object embedded in a ranking record.
type RankingUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// RankingEntry is one record of a rankings page.
type RankingEntry struct {
	User        RankingUser `json:"user"`
	RankedScore int64       `json:"ranked_score"`
}

// Cursor points at the next page. A nil cursor on a page means end-of-data.
type Cursor struct {
	Page int `json:"page"`
}

// RankingsPage is one page of the paginated rankings feed.
type RankingsPage struct {
	Ranking []RankingEntry `json:"ranking"`
	Cursor  *Cursor        `json:"cursor"`
}

// New creates a Client.
func New(o Opts) *Client {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.TokenURL == "" {
		o.TokenURL = DefaultTokenURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	return &Client{
		baseURL: o.BaseURL,
		client:  client,
		tokens: &tokenSource{
			tokenURL:     o.TokenURL,
			clientID:     o.ClientID,
			clientSecret: o.ClientSecret,
			client:       client,
		},
	}
}

// Rankings fetches one page of the score rankings for a mode. The page
// number comes from the previous page's cursor (1 for the first call).
func (c *Client) Rankings(ctx context.Context, mode modes.Mode, page int) (*RankingsPage, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}

	q := url.Values{}
	q.Set("cursor[page]", strconv.Itoa(page))
	endpoint := fmt.Sprintf("%s/rankings/%s/score?%s", c.baseURL, mode, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build rankings request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", token)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ObserveSourceRequest(time.Since(start), mode.String(), "error")
		return nil, fmt.Errorf("fetch rankings page %d: %w", page, err)
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()
	metrics.ObserveSourceRequest(time.Since(start), mode.String(), strconv.Itoa(resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rankings page %d: unexpected status %d", page, resp.StatusCode)
	}

	var out RankingsPage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rankings page %d: %w", page, err)
	}
	return &out, nil
}
