package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"privaudit/pkg/logger"
)

type countingRotations struct {
	calls atomic.Int64
}

func (c *countingRotations) ExecuteDueRotations(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return 1, nil
}

type countingApprovals struct {
	calls atomic.Int64
}

func (c *countingApprovals) ExpireStale(ctx context.Context) (int64, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestSweepRunsBothSweepers(t *testing.T) {
	rot := &countingRotations{}
	app := &countingApprovals{}
	s := New(rot, app, time.Hour, logger.NewNop())

	s.Sweep(context.Background())
	assert.EqualValues(t, 1, rot.calls.Load())
	assert.EqualValues(t, 1, app.calls.Load())
}

func TestStartStopIdempotent(t *testing.T) {
	rot := &countingRotations{}
	app := &countingApprovals{}
	s := New(rot, app, time.Millisecond, logger.NewNop())

	s.Start()
	s.Start() // second call is a no-op

	assert.Eventually(t, func() bool {
		return rot.calls.Load() > 0 && app.calls.Load() > 0
	}, time.Second, time.Millisecond)

	s.Stop()
	s.Stop() // second call is a no-op

	after := rot.calls.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, rot.calls.Load())
}
