// Package icypeas provides a client for the Icypeas bulk email-search and
// email-verification API. Searches are launched as a named bulk task and
// read back with a single bulk id; callers poll until every item reaches a
// terminal status.
package icypeas

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://app.icypeas.com/api"

// Bulk task kinds.
const (
	TaskEmailSearch       = "email-search"
	TaskEmailVerification = "email-verification"
)

// Terminal item statuses. An item holding any other status is still running.
const (
	StatusDebited  = "DEBITED"
	StatusNoResult = "NO_RESULT"
	StatusError    = "ERROR"
)

// Email certainty levels, strongest first.
const (
	CertaintyUltraSure = "ultra_sure"
	CertaintySure      = "sure"
	CertaintyLikely    = "likely"
	CertaintyMaybe     = "maybe"
)

// CertaintyScore ranks a certainty string; unknown values rank zero.
func CertaintyScore(certainty string) int {
	switch certainty {
	case CertaintyUltraSure:
		return 4
	case CertaintySure:
		return 3
	case CertaintyLikely:
		return 2
	case CertaintyMaybe:
		return 1
	default:
		return 0
	}
}

// IsTerminal reports whether an item status is final.
func IsTerminal(status string) bool {
	switch status {
	case StatusDebited, StatusNoResult, StatusError:
		return true
	default:
		return false
	}
}

// Client performs bulk searches against the Icypeas API.
type Client interface {
	// LaunchBulk starts a bulk task and returns its id. Each data row is one
	// search: [firstname, lastname, domain] for email-search, [email] for
	// email-verification. Results are returned in row order.
	LaunchBulk(ctx context.Context, req BulkRequest) (string, error)
	// ReadResults fetches the current items for a bulk id.
	ReadResults(ctx context.Context, bulkID string) ([]SearchResult, error)
}

// BulkRequest launches a named bulk task.
type BulkRequest struct {
	Task string     `json:"task"`
	Name string     `json:"name"`
	Data [][]string `json:"data"`
}

// launchResponse wraps the created bulk item.
type launchResponse struct {
	Success bool `json:"success"`
	Item    struct {
		ID string `json:"_id"`
	} `json:"item"`
}

// readResponse wraps the bulk items.
type readResponse struct {
	Success bool           `json:"success"`
	Items   []SearchResult `json:"items"`
}

// SearchResult is one bulk item in submission order.
type SearchResult struct {
	ID      string  `json:"_id"`
	Status  string  `json:"status"`
	Results Results `json:"results"`
}

// Terminal reports whether this item has finished processing.
func (r SearchResult) Terminal() bool {
	return IsTerminal(r.Status)
}

// Results holds the findings for one search.
type Results struct {
	Emails []Email `json:"emails"`
	Valid  bool    `json:"valid"`
}

// BestEmail returns the highest-certainty email, or nil when none were found.
func (r Results) BestEmail() *Email {
	var best *Email
	for i := range r.Emails {
		if best == nil || CertaintyScore(r.Emails[i].Certainty) > CertaintyScore(best.Certainty) {
			best = &r.Emails[i]
		}
	}
	return best
}

// Email is a found address with its certainty level.
type Email struct {
	Email     string `json:"email"`
	Certainty string `json:"certainty"`
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

// NewClient creates an Icypeas API client.
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

func (c *httpClient) LaunchBulk(ctx context.Context, req BulkRequest) (string, error) {
	var result launchResponse
	if err := c.post(ctx, "/bulk", req, &result); err != nil {
		return "", err
	}
	if !result.Success || result.Item.ID == "" {
		return "", eris.New("icypeas: bulk launch rejected")
	}
	return result.Item.ID, nil
}

func (c *httpClient) ReadResults(ctx context.Context, bulkID string) ([]SearchResult, error) {
	var result readResponse
	if err := c.post(ctx, "/bulk-single-searchs/read", map[string]string{"id": bulkID}, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, eris.New("icypeas: read rejected")
	}
	return result.Items, nil
}

func (c *httpClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "icypeas: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "icypeas: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrap(err, "icypeas: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "icypeas: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("icypeas: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "icypeas: unmarshal response")
	}

	return nil
}
