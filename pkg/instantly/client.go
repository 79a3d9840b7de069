// Package instantly pushes finished leads into an Instantly email campaign.
package instantly

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.instantly.ai/api/v2"

// MaxLeadsPerRequest is the API's batch ceiling for one add-leads call.
// Callers chunk above this.
const MaxLeadsPerRequest = 1000

// Client manages campaigns and campaign leads.
type Client interface {
	// EnsureCampaign returns the ID of the campaign with the given name,
	// creating it when absent.
	EnsureCampaign(ctx context.Context, name string) (string, error)
	// AddLeads adds up to MaxLeadsPerRequest leads to a campaign. Leads
	// already present in the workspace are skipped, not duplicated.
	AddLeads(ctx context.Context, campaignID string, leads []Lead) (*AddResult, error)
}

// Lead is one campaign lead row.
type Lead struct {
	Email           string            `json:"email"`
	FirstName       string            `json:"first_name"`
	LastName        string            `json:"last_name,omitempty"`
	CompanyName     string            `json:"company_name,omitempty"`
	Website         string            `json:"website,omitempty"`
	CustomVariables map[string]string `json:"custom_variables,omitempty"`
}

// AddResult summarizes one add-leads call.
type AddResult struct {
	Uploaded int
	Skipped  int
}

type addLeadsRequest struct {
	Leads             []Lead `json:"leads"`
	CampaignID        string `json:"campaign_id"`
	SkipIfInWorkspace bool   `json:"skip_if_in_workspace"`
}

type addLeadsResponse struct {
	LeadsUploaded   int `json:"leads_uploaded"`
	SkippedCount    int `json:"skipped_count"`
	DuplicatedLeads int `json:"duplicated_leads"`
}

type campaign struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type campaignsResponse struct {
	Items []campaign `json:"items"`
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

// NewClient creates an Instantly API client. Batch adds can be slow, so the
// default timeout is generous.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 120 * time.Second,
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

func (c *httpClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return eris.Wrap(err, "instantly: marshal request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "instantly: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "instantly: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "instantly: read response")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return eris.Errorf("instantly: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrap(err, "instantly: unmarshal response")
		}
	}
	return nil
}

func (c *httpClient) EnsureCampaign(ctx context.Context, name string) (string, error) {
	q := url.Values{}
	q.Set("search", name)

	var listed campaignsResponse
	if err := c.do(ctx, http.MethodGet, "/campaigns?"+q.Encode(), nil, &listed); err != nil {
		return "", err
	}
	for _, camp := range listed.Items {
		if camp.Name == name {
			return camp.ID, nil
		}
	}

	var created campaign
	if err := c.do(ctx, http.MethodPost, "/campaigns", map[string]string{"name": name}, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", eris.Errorf("instantly: create campaign %q returned no id", name)
	}
	return created.ID, nil
}

func (c *httpClient) AddLeads(ctx context.Context, campaignID string, leads []Lead) (*AddResult, error) {
	if len(leads) > MaxLeadsPerRequest {
		return nil, eris.Errorf("instantly: %d leads exceeds the %d per-request limit", len(leads), MaxLeadsPerRequest)
	}

	payload := addLeadsRequest{
		Leads:             leads,
		CampaignID:        campaignID,
		SkipIfInWorkspace: true,
	}

	var result addLeadsResponse
	if err := c.do(ctx, http.MethodPost, "/leads/add", payload, &result); err != nil {
		return nil, err
	}
	return &AddResult{
		Uploaded: result.LeadsUploaded,
		Skipped:  result.SkippedCount + result.DuplicatedLeads,
	}, nil
}
