package resilience

import (
	"testing"
	"time"
)

func TestFromRetryConfig_Overrides(t *testing.T) {
	cfg := FromRetryConfig(5, 2000, 60000, 3.0, 0.5)
	if cfg.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 2*time.Second {
		t.Errorf("expected 2s initial backoff, got %v", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff != 60*time.Second {
		t.Errorf("expected 60s max backoff, got %v", cfg.MaxBackoff)
	}
	if cfg.Multiplier != 3.0 {
		t.Errorf("expected multiplier 3.0, got %v", cfg.Multiplier)
	}
	if cfg.JitterFraction != 0.5 {
		t.Errorf("expected jitter 0.5, got %v", cfg.JitterFraction)
	}
}

func TestFromRetryConfig_ZeroKeepsDefaults(t *testing.T) {
	def := DefaultRetryConfig()
	cfg := FromRetryConfig(0, 0, 0, 0, 0)
	if cfg.MaxAttempts != def.MaxAttempts {
		t.Errorf("expected default attempts %d, got %d", def.MaxAttempts, cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != def.InitialBackoff {
		t.Errorf("expected default initial backoff %v, got %v", def.InitialBackoff, cfg.InitialBackoff)
	}
	if cfg.JitterFraction != def.JitterFraction {
		t.Errorf("expected default jitter %v, got %v", def.JitterFraction, cfg.JitterFraction)
	}
}

func TestFromCircuitConfig(t *testing.T) {
	cfg := FromCircuitConfig(10, 120)
	if cfg.FailureThreshold != 10 {
		t.Errorf("expected threshold 10, got %d", cfg.FailureThreshold)
	}
	if cfg.ResetTimeout != 2*time.Minute {
		t.Errorf("expected 2m reset timeout, got %v", cfg.ResetTimeout)
	}

	def := DefaultCircuitBreakerConfig()
	zero := FromCircuitConfig(0, 0)
	if zero.FailureThreshold != def.FailureThreshold {
		t.Errorf("expected default threshold %d, got %d", def.FailureThreshold, zero.FailureThreshold)
	}
	if zero.ResetTimeout != def.ResetTimeout {
		t.Errorf("expected default reset timeout %v, got %v", def.ResetTimeout, zero.ResetTimeout)
	}
}
