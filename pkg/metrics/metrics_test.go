package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewWithRegistryIsolated(t *testing.T) {
	regA, regB := prometheus.NewRegistry(), prometheus.NewRegistry()
	a := NewWithRegistry(regA)
	NewWithRegistry(regB)

	a.PredictionsTotal.WithLabelValues("Engineering").Inc()
	a.CircuitBreakerState.WithLabelValues("serp").Set(1)

	families, err := regA.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{"predictions_total", "circuit_breaker_state"} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}

	other, err := regB.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range other {
		if f.GetName() == "predictions_total" {
			t.Error("registry B saw registry A's samples")
		}
	}
}
