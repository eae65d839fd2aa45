package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCounters(t *testing.T) {
	r := NewRun()
	r.EventsTotal.WithLabelValues("linux.ssh").Add(5)
	r.TimestampFallbacks.WithLabelValues("clock").Inc()

	assert.Equal(t, float64(5), testutil.ToFloat64(r.EventsTotal.WithLabelValues("linux.ssh")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.TimestampFallbacks.WithLabelValues("clock")))

	// private registries must not collide
	r2 := NewRun()
	assert.Equal(t, float64(0), testutil.ToFloat64(r2.EventsTotal.WithLabelValues("linux.ssh")))
}

func TestRunWriteFile(t *testing.T) {
	r := NewRun()
	r.FindingsTotal.WithLabelValues("high").Add(2)

	path := filepath.Join(t.TempDir(), "minisiem.prom")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `minisiem_engine_findings_total{severity="high"} 2`))
}
