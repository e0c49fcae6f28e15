package metrics

import (
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRegisterDBStats(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterDBStats(reg, sqlDB))
	require.NoError(t, RegisterDBStats(reg, sqlDB), "second registration is a no-op")

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_sql_open_connections"])
	assert.True(t, names["go_sql_max_open_connections"])
}

func TestRecordSchedulerRun(t *testing.T) {
	before := counterValue(t, SchedulerRunsTotal.WithLabelValues("collector_test", "failed"))
	err := RecordSchedulerRun("collector_test", func() error { return errors.New("boom") })
	require.Error(t, err)
	after := counterValue(t, SchedulerRunsTotal.WithLabelValues("collector_test", "failed"))
	assert.Equal(t, before+1, after)
}

func TestRecordModelCallTokens(t *testing.T) {
	prompt := ModelCallTokens.WithLabelValues("collector_test", "prompt")
	before := counterValue(t, prompt)
	require.NoError(t, RecordModelCall("collector_test", func() (int, int, error) { return 40, 0, nil }))
	assert.Equal(t, before+40, counterValue(t, prompt))
	assert.Equal(t, 1.0, counterValue(t, ModelCallsTotal.WithLabelValues("collector_test", "success")))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
