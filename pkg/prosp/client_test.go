package prosp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddLead_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/leads", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "test-key", payload["api_key"])
		assert.Equal(t, "https://linkedin.com/in/jane-doe", payload["linkedin_url"])
		assert.Equal(t, "list-1", payload["list_id"])
		assert.Equal(t, "camp-1", payload["campaign_id"])

		data, ok := payload["data"].([]any)
		require.True(t, ok)
		require.Len(t, data, 2)
		first, ok := data[0].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "first_name", first["property"])
		assert.Equal(t, "Jane", first["value"])

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	err := client.AddLead(context.Background(), AddLeadRequest{
		LinkedInURL: "https://linkedin.com/in/jane-doe",
		ListID:      "list-1",
		CampaignID:  "camp-1",
		Data: []Property{
			{Property: "first_name", Value: "Jane"},
			{Property: "company", Value: "Acme"},
		},
	})
	require.NoError(t, err)
}

func TestAddLead_AcceptsCreated(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"lead-1"}`)) //nolint:errcheck
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	err := client.AddLead(context.Background(), AddLeadRequest{
		LinkedInURL: "https://linkedin.com/in/jane-doe",
	})
	require.NoError(t, err)
}

func TestAddLead_OmitsEmptyDestinations(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.NotContains(t, payload, "list_id")
		assert.NotContains(t, payload, "campaign_id")
		assert.NotContains(t, payload, "data")

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	err := client.AddLead(context.Background(), AddLeadRequest{
		LinkedInURL: "https://linkedin.com/in/jane-doe",
	})
	require.NoError(t, err)
}

func TestAddLead_MissingURL(t *testing.T) {
	t.Parallel()

	client := NewClient("test-key")
	err := client.AddLead(context.Background(), AddLeadRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "linkedin url is required")
}

func TestAddLead_APIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`)) //nolint:errcheck
	}))
	defer server.Close()

	client := NewClient("bad-key", WithBaseURL(server.URL))
	err := client.AddLead(context.Background(), AddLeadRequest{
		LinkedInURL: "https://linkedin.com/in/jane-doe",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 401")
}
