// Package apify reads actor run metadata and dataset items from the Apify
// API. The scraper actor runs on its own schedule; this client only fetches
// the results of the most recent successful run.
package apify

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

const defaultBaseURL = "https://api.apify.com/v2"

// StatusSucceeded is the actor run status worth reading results from.
const StatusSucceeded = "SUCCEEDED"

// DatasetPageLimit is the page size used when reading dataset items.
const DatasetPageLimit = 1000

// Client reads actor runs and dataset items.
type Client interface {
	// LatestSucceededRun returns the most recent SUCCEEDED run of the actor.
	LatestSucceededRun(ctx context.Context, actorID string) (*Run, error)
	// DatasetItems returns one page of raw dataset items.
	DatasetItems(ctx context.Context, datasetID string, offset, limit int) ([]json.RawMessage, error)
	// AllDatasetItems pages through the full dataset until a short page.
	AllDatasetItems(ctx context.Context, datasetID string) ([]json.RawMessage, error)
}

// Run is one actor run record.
type Run struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	DefaultDatasetID string    `json:"defaultDatasetId"`
}

type runsEnvelope struct {
	Data struct {
		Items []Run `json:"items"`
	} `json:"data"`
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
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates an Apify API client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
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

func (c *httpClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "apify: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "apify: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "apify: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("apify: unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *httpClient) LatestSucceededRun(ctx context.Context, actorID string) (*Run, error) {
	q := url.Values{}
	q.Set("desc", "true")
	q.Set("limit", "10")

	body, err := c.get(ctx, "/acts/"+url.PathEscape(actorID)+"/runs?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var envelope runsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "apify: unmarshal runs")
	}

	for _, run := range envelope.Data.Items {
		if run.Status != StatusSucceeded {
			continue
		}
		if run.DefaultDatasetID == "" {
			return nil, eris.Errorf("apify: run %s has no dataset", run.ID)
		}
		r := run
		return &r, nil
	}
	return nil, eris.Errorf("apify: no succeeded runs for actor %s", actorID)
}

func (c *httpClient) DatasetItems(ctx context.Context, datasetID string, offset, limit int) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("clean", "true")
	q.Set("offset", fmt.Sprint(offset))
	q.Set("limit", fmt.Sprint(limit))

	body, err := c.get(ctx, "/datasets/"+url.PathEscape(datasetID)+"/items?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, eris.Wrap(err, "apify: unmarshal dataset items")
	}
	return items, nil
}

func (c *httpClient) AllDatasetItems(ctx context.Context, datasetID string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	for offset := 0; ; offset += DatasetPageLimit {
		page, err := c.DatasetItems(ctx, datasetID, offset, DatasetPageLimit)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < DatasetPageLimit {
			return all, nil
		}
	}
}
