package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestRegistryGaugesAndCounters(t *testing.T) {
	r := NewRegistry()
	r.ChainHeight.Update(42)
	r.BlocksCommitted.Inc(3)

	assert.EqualValues(t, 42, r.ChainHeight.Value())
	assert.EqualValues(t, 3, r.BlocksCommitted.Count())
}

func TestCollectorEmitsPrometheusMetrics(t *testing.T) {
	r := NewRegistry()
	r.ChainHeight.Update(7)

	c := &collector{registry: r}
	ch := make(chan prometheus.Metric, 64)
	c.Collect(ch)
	close(ch)

	found := 0
	for range ch {
		found++
	}
	assert.Greater(t, found, 0)
}

func TestSanitizeReplacesSlashesAndDashes(t *testing.T) {
	assert.Equal(t, "chain_height", sanitize("chain/height"))
	assert.Equal(t, "a_b_c", sanitize("a/b-c"))
}
