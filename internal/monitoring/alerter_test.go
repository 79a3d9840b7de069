package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadpipe/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.AlertConfig{
		FailureRateThreshold: 0.10,
		DLQDepthThreshold:    100,
	})

	snap := &MetricsSnapshot{
		RunsTotal:     100,
		RunsComplete:  95,
		RunsFailed:    5,
		RunFailRate:   0.05,
		LeadsEnriched: 50,
		DLQDepth:      2,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_RunFailureRate(t *testing.T) {
	a := NewAlerter(config.AlertConfig{
		FailureRateThreshold: 0.10,
	})

	snap := &MetricsSnapshot{
		RunsTotal:     20,
		RunsComplete:  12,
		RunsFailed:    8,
		RunFailRate:   0.4, // 8/20 = 40%
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_EnrichFailureRate(t *testing.T) {
	a := NewAlerter(config.AlertConfig{
		FailureRateThreshold: 0.10,
	})

	snap := &MetricsSnapshot{
		LeadsEnriched:  30,
		EnrichFailed:   10,
		EnrichFailRate: 0.25,
		LookbackHours:  24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertEnrichFailureRate, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "10 failed / 40 attempted")
}

func TestAlerter_Evaluate_DLQBacklog(t *testing.T) {
	a := NewAlerter(config.AlertConfig{
		FailureRateThreshold: 0.10,
		DLQDepthThreshold:    50,
	})

	snap := &MetricsSnapshot{
		DLQDepth:      120,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertDLQBacklog, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "120")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.AlertConfig{
		FailureRateThreshold: 0.10,
		DLQDepthThreshold:    10,
	})

	snap := &MetricsSnapshot{
		RunsTotal:      20,
		RunsComplete:   10,
		RunsFailed:     10,
		RunFailRate:    0.5,
		LeadsEnriched:  20,
		EnrichFailed:   20,
		EnrichFailRate: 0.5,
		DLQDepth:       30,
		LookbackHours:  24,
	}

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, alert := range alerts {
		types[alert.Type] = true
	}
	assert.True(t, types[AlertRunFailureRate])
	assert.True(t, types[AlertEnrichFailureRate])
	assert.True(t, types[AlertDLQBacklog])
}

func TestAlerter_Evaluate_MinimumRunsRequired(t *testing.T) {
	a := NewAlerter(config.AlertConfig{
		FailureRateThreshold: 0.10,
	})

	// Only 3 finished runs — below the 5-run minimum for failure rate alert.
	snap := &MetricsSnapshot{
		RunsTotal:     3,
		RunsComplete:  1,
		RunsFailed:    2,
		RunFailRate:   0.666,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_MinimumEnrichVolumeRequired(t *testing.T) {
	a := NewAlerter(config.AlertConfig{
		FailureRateThreshold: 0.10,
	})

	// Only 10 enrichment attempts — below the 20-attempt minimum.
	snap := &MetricsSnapshot{
		LeadsEnriched:  5,
		EnrichFailed:   5,
		EnrichFailRate: 0.5,
		LookbackHours:  24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.AlertConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertRunFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertDLQBacklog, Severity: "medium", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.AlertConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailureRate, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.AlertConfig{
		WebhookURL: "http://example.com",
	})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.AlertConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertRunFailureRate, Message: "test"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 0, sent)
}

func TestAlerter_Evaluate_ZeroDLQThreshold(t *testing.T) {
	a := NewAlerter(config.AlertConfig{
		DLQDepthThreshold: 0, // disabled
	})

	snap := &MetricsSnapshot{
		DLQDepth:      999,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}
