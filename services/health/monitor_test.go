package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type flakyPinger struct {
	fail  atomic.Bool
	calls atomic.Int32
}

func (p *flakyPinger) Ping(ctx context.Context) error {
	p.calls.Add(1)
	if p.fail.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestMonitor_OnlineProbesLazily(t *testing.T) {
	p := &flakyPinger{}
	m := NewMonitor(p, 0, zap.NewNop())

	assert.True(t, m.Online(context.Background()))
	assert.True(t, m.Online(context.Background()))
	assert.Equal(t, int32(1), p.calls.Load(), "second call should use the cached status")
}

func TestMonitor_CheckRecordsFailure(t *testing.T) {
	p := &flakyPinger{}
	p.fail.Store(true)
	m := NewMonitor(p, 0, zap.NewNop())

	st := m.Check(context.Background())
	assert.False(t, st.Online)
	assert.Contains(t, st.LastError, "refused")
	assert.False(t, m.Online(context.Background()))
}

func TestMonitor_StartKeepsProbing(t *testing.T) {
	p := &flakyPinger{}
	m := NewMonitor(p, 10*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	assert.True(t, m.Status().Online)

	p.fail.Store(true)
	assert.Eventually(t, func() bool { return !m.Status().Online }, time.Second, 5*time.Millisecond)
}

func TestStatic(t *testing.T) {
	assert.True(t, Static(true).Online(context.Background()))
	assert.False(t, Static(false).Online(context.Background()))
}
