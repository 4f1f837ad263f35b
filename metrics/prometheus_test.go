package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusCollector_Gather(t *testing.T) {
	c := NewCollector("inst-1", "")
	c.IncOpStarted(OpConvert)
	c.IncOpStarted(OpConvert)
	c.IncOpFailed(OpJoin)
	c.IncEngineDialAttempt()

	reg := prometheus.NewRegistry()
	if err := reg.Register(NewPrometheusCollector(c)); err != nil {
		t.Fatalf("register: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	byName := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "op" {
					key += "{" + lp.GetValue() + "}"
				}
			}
			byName[key] = m.GetCounter().GetValue()
		}
	}

	if got := byName["docbroker_operations_started_total{convert}"]; got != 2 {
		t.Errorf("operations_started_total{convert} = %v, want 2", got)
	}
	if got := byName["docbroker_operations_failed_total{join}"]; got != 1 {
		t.Errorf("operations_failed_total{join} = %v, want 1", got)
	}
	if got := byName["docbroker_engine_dial_attempts_total"]; got != 1 {
		t.Errorf("engine_dial_attempts_total = %v, want 1", got)
	}
	if _, ok := byName["docbroker_merge_passes_total"]; !ok {
		t.Error("merge_passes_total missing from scrape")
	}
}
