// Package prosp adds leads to a Prosp LinkedIn outreach campaign, one
// profile at a time.
package prosp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.prosp.ai/v1"

// Client adds leads to lists and campaigns.
type Client interface {
	AddLead(ctx context.Context, req AddLeadRequest) error
}

// AddLeadRequest identifies the profile and its destination.
type AddLeadRequest struct {
	LinkedInURL string
	ListID      string
	CampaignID  string
	Data        []Property
}

// Property is one custom field attached to the lead.
type Property struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// addLeadPayload is the wire shape; the API authenticates via a body field
// rather than a header.
type addLeadPayload struct {
	APIKey      string     `json:"api_key"`
	LinkedInURL string     `json:"linkedin_url"`
	ListID      string     `json:"list_id,omitempty"`
	CampaignID  string     `json:"campaign_id,omitempty"`
	Data        []Property `json:"data,omitempty"`
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

// NewClient creates a Prosp API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
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

func (c *httpClient) AddLead(ctx context.Context, req AddLeadRequest) error {
	if req.LinkedInURL == "" {
		return eris.New("prosp: linkedin url is required")
	}

	payload := addLeadPayload{
		APIKey:      c.apiKey,
		LinkedInURL: req.LinkedInURL,
		ListID:      req.ListID,
		CampaignID:  req.CampaignID,
		Data:        req.Data,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "prosp: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/leads", bytes.NewReader(data))
	if err != nil {
		return eris.Wrap(err, "prosp: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrap(err, "prosp: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "prosp: read response")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return eris.Errorf("prosp: unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
