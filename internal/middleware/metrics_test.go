package middleware

import (
	"testing"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}
	if got := len(m.Collectors()); got != 7 {
		t.Errorf("Collectors() returned %d collectors, want 7", got)
	}
}

func TestMetrics_RateLimitCounters(t *testing.T) {
	m, reg := metricsForTest(t)

	m.IncRateLimitRequests("/v1/actions", "actor")
	m.IncRateLimitRequests("/v1/actions", "actor")
	m.IncRateLimitRequests("/v1/faults", "ip")
	m.IncRateLimitBlocked("/v1/auth/token", "ip")

	requests := gatherFamily(t, reg, MetricRateLimitRequests)
	if requests == nil {
		t.Fatalf("metric %s not found", MetricRateLimitRequests)
	}
	if len(requests.GetMetric()) != 2 {
		t.Errorf("expected 2 label sets, got %d", len(requests.GetMetric()))
	}
	for _, metric := range requests.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "endpoint" && label.GetValue() == "/v1/actions" {
				if metric.GetCounter().GetValue() != 2 {
					t.Errorf("/v1/actions counter = %f, want 2", metric.GetCounter().GetValue())
				}
			}
		}
	}

	blocked := gatherFamily(t, reg, MetricRateLimitBlocked)
	if blocked == nil {
		t.Fatalf("metric %s not found", MetricRateLimitBlocked)
	}
	if len(blocked.GetMetric()) != 1 {
		t.Errorf("expected 1 blocked label set, got %d", len(blocked.GetMetric()))
	}
}

func TestMetrics_RedisErrorCounter(t *testing.T) {
	m, reg := metricsForTest(t)

	m.IncRateLimitRedisErrors()
	m.IncRateLimitRedisErrors()

	mf := gatherFamily(t, reg, MetricRateLimitRedisErrors)
	if mf == nil {
		t.Fatalf("metric %s not found", MetricRateLimitRedisErrors)
	}
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("redis error counter = %f, want 2", got)
	}
}

func TestMetrics_RegisterTwiceFails(t *testing.T) {
	m, reg := metricsForTest(t)
	if err := m.Register(reg); err == nil {
		t.Error("registering the same collectors twice should fail")
	}
}
