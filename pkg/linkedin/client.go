// Package linkedin lists the reactions on a LinkedIn post through a scraping
// provider, one page at a time. The caller owns the page loop and the
// inter-page delay.
package linkedin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.scrapingdog.com/linkedin"

// Client lists post reactions.
type Client interface {
	Reactions(ctx context.Context, postID string, page int) (*ReactionsPage, error)
}

// Reaction is one person who reacted to the post.
type Reaction struct {
	Name       string `json:"name"`
	Headline   string `json:"headline"`
	ProfileURL string `json:"profile_url"`
}

// ReactionsPage is one page of reactions plus the total page count the
// caller needs to drive the loop.
type ReactionsPage struct {
	Reactions  []Reaction `json:"reactions"`
	TotalPages int        `json:"total_pages"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a post-reactions client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Reactions(ctx context.Context, postID string, page int) (*ReactionsPage, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("post_id", postID)
	q.Set("page", fmt.Sprint(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/post-reactions?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "linkedin: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "linkedin: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "linkedin: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("linkedin: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result ReactionsPage
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "linkedin: unmarshal response")
	}
	return &result, nil
}
