// Package clado provides a client for the Clado contact-enrichment API,
// which returns contact records keyed by a LinkedIn profile URL.
package clado

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://search.clado.ai"

// Client performs contact lookups against the Clado API.
type Client interface {
	EnrichContacts(ctx context.Context, req ContactsRequest) ([]Contact, error)
}

// ContactsRequest identifies the profile to enrich.
type ContactsRequest struct {
	LinkedInURL string
	SearchEmail bool
}

// Contact is a single contact record returned by the API.
type Contact struct {
	Type    string  `json:"type"`
	Value   string  `json:"value"`
	SubType string  `json:"sub_type"`
	Rating  float64 `json:"rating"`
}

// contactsEnvelope is the top-level response wrapper. The data payload
// nesting varies between API versions, so it is decoded in a second pass.
type contactsEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// contactRecord is one identity entry holding its contact list.
type contactRecord struct {
	Contacts []Contact `json:"contacts"`
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

// NewClient creates a Clado API client.
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

func (c *httpClient) EnrichContacts(ctx context.Context, req ContactsRequest) ([]Contact, error) {
	q := url.Values{}
	q.Set("linkedin_url", req.LinkedInURL)
	if req.SearchEmail {
		q.Set("search_email", "true")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/enrich/contacts?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "clado: create request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "clado: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "clado: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("clado: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var envelope contactsEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, eris.Wrap(err, "clado: unmarshal response")
	}

	return decodeContacts(envelope.Data), nil
}

// decodeContacts extracts contact records from the data payload. The API has
// shipped the payload as a record list, a single record, and a bare contact
// list; anything that matches none of those shapes means no data.
func decodeContacts(data json.RawMessage) []Contact {
	if len(data) == 0 {
		return nil
	}

	var records []contactRecord
	if err := json.Unmarshal(data, &records); err == nil {
		var contacts []Contact
		for _, r := range records {
			contacts = append(contacts, r.Contacts...)
		}
		if len(contacts) > 0 {
			return contacts
		}
	}

	var record contactRecord
	if err := json.Unmarshal(data, &record); err == nil && len(record.Contacts) > 0 {
		return record.Contacts
	}

	// Bare contact list: only entries with a value count, so a vacuous
	// decode of some other shape does not fabricate contacts.
	var bare []Contact
	if err := json.Unmarshal(data, &bare); err == nil {
		var contacts []Contact
		for _, c := range bare {
			if c.Value != "" {
				contacts = append(contacts, c)
			}
		}
		return contacts
	}

	return nil
}
