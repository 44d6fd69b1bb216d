package comm_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
	"github.com/KevinKickass/OpenRoadwayCore/internal/comm/commtest"
)

func TestMetricsRecordOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := comm.NewMetrics(reg)
	require.NoError(t, err)
	assert.Equal(t, reg, metrics.Gatherer())

	m := commtest.NewMessenger(time.Second)
	m.Respond = upperEcho
	link := comm.NewCommLink("m1", "line", "tcp://m1:1")
	ctl := comm.NewController("m1-ctl", 1)
	link.AddController(ctl)
	p := comm.NewPoller(link, lineProtocol, m, commtest.StartSelector(t), comm.DefaultPollerConfig(), metrics, zap.NewNop())
	t.Cleanup(p.Destroy)
	require.NoError(t, p.Start(context.Background()))

	op := p.CreateOperation(ctl, "QueryStatus", comm.PriorityCommand, queryPhase(&lineProp{req: "status"}))
	require.NoError(t, p.Add(op))
	require.NoError(t, op.Wait(waitCtx(t, 2*time.Second)))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.Operations.WithLabelValues("m1", "SUCCEEDED")) == 1 &&
			testutil.ToFloat64(metrics.Attempts.WithLabelValues("m1")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.Duration))
}

func TestMetricsRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := comm.NewMetrics(reg)
	require.NoError(t, err)
	second, err := comm.NewMetrics(reg)
	require.NoError(t, err)
	assert.Same(t, first.Operations, second.Operations)
}

func TestNilMetrics(t *testing.T) {
	var metrics *comm.Metrics
	assert.Nil(t, metrics.Gatherer())
}
