// Package apollo provides a client for the Apollo people-match API, which
// resolves a person's contact info from a name and organization.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.apollo.io/api/v1"

// Client performs person matches against the Apollo API.
type Client interface {
	MatchPerson(ctx context.Context, req MatchRequest) (*Person, error)
}

// MatchRequest is the request body for POST /people/match.
type MatchRequest struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	OrganizationName string `json:"organization_name"`
}

// matchResponse wraps the matched person. A null person means no match.
type matchResponse struct {
	Person *Person `json:"person"`
}

// Person is Apollo's best-match person record.
type Person struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	FirstName   string        `json:"first_name"`
	LastName    string        `json:"last_name"`
	Title       string        `json:"title"`
	Email       string        `json:"email"`
	EmailStatus string        `json:"email_status"`
	LinkedInURL string        `json:"linkedin_url"`
	Org         *Organization `json:"organization"`
}

// Organization is the person's current company per Apollo.
type Organization struct {
	Name          string `json:"name"`
	PrimaryDomain string `json:"primary_domain"`
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

// NewClient creates an Apollo API client.
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

// MatchPerson returns Apollo's best match for the request, or nil when the
// API reports no match.
func (c *httpClient) MatchPerson(ctx context.Context, req MatchRequest) (*Person, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/people/match", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "apollo: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("apollo: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result matchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "apollo: unmarshal response")
	}

	return result.Person, nil
}
