package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/quantsweep/internal/backtest"
	"github.com/newthinker/quantsweep/internal/sweep"
)

var (
	_ backtest.Recorder = (*Registry)(nil)
	_ sweep.Recorder    = (*Registry)(nil)
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NotNil(t, reg)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs, "runtime collectors are registered")
}

func TestRegistry_Simulations(t *testing.T) {
	reg := NewRegistry()

	reg.RecordSimulation("momentum", "ok", 120*time.Millisecond)
	reg.RecordSimulation("momentum", "ok", 80*time.Millisecond)
	reg.RecordSimulation("momentum", "failed", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(reg.simulationsTotal.WithLabelValues("momentum", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.simulationsTotal.WithLabelValues("momentum", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(reg.simulationDuration))
}

func TestRegistry_FillsAndRejections(t *testing.T) {
	reg := NewRegistry()

	reg.RecordFill("executed")
	reg.RecordFill("rejected")
	reg.RecordFill("executed")
	reg.RecordRejection("INSUFFICIENT_CASH")

	assert.Equal(t, 2.0, testutil.ToFloat64(reg.fillsTotal.WithLabelValues("executed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.fillsTotal.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.rejectionsTotal.WithLabelValues("INSUFFICIENT_CASH")))
}

func TestRegistry_Sweep(t *testing.T) {
	reg := NewRegistry()

	reg.WorkerStarted()
	reg.WorkerStarted()
	reg.WorkerFinished()
	reg.RecordCombination("scored")
	reg.RecordCombination("abandoned")

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.workersBusy))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.combinationsTotal.WithLabelValues("scored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.combinationsTotal.WithLabelValues("abandoned")))
}

func TestRegistry_WriteTextfile(t *testing.T) {
	reg := NewRegistry()
	reg.RecordSimulation("mean_reversion", "ok", time.Second)

	path := filepath.Join(t.TempDir(), "quantsweep.prom")
	require.NoError(t, reg.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `quantsweep_simulations_total{status="ok",strategy="mean_reversion"} 1`)
}
