package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blackpass-api/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu       sync.Mutex
	recorded []services.MilestoneEvent
	fail     bool
}

func (f *fakeRecorder) Record(ctx context.Context, m services.MilestoneEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("db down")
	}
	f.recorded = append(f.recorded, m)
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recorded)
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	w := NewMilestoneWorker(&fakeRecorder{}, 2)

	assert.True(t, w.Enqueue(services.MilestoneEvent{CountryCode: "NG", Type: "registration"}))
	assert.True(t, w.Enqueue(services.MilestoneEvent{CountryCode: "NG", Type: "registration"}))
	assert.False(t, w.Enqueue(services.MilestoneEvent{CountryCode: "NG", Type: "registration"}))
	assert.Equal(t, 2, w.Pending())
}

func TestRunRecordsAndDrainsOnShutdown(t *testing.T) {
	rec := &fakeRecorder{}
	w := NewMilestoneWorker(rec, 16)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		require.True(t, w.Enqueue(services.MilestoneEvent{CountryCode: "GH", Type: "mission_completed", XPGained: 10}))
	}
	require.Eventually(t, func() bool { return rec.count() == 5 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Zero(t, w.Pending())
}

func TestRecorderFailureDoesNotStopWorker(t *testing.T) {
	rec := &fakeRecorder{fail: true}
	w := NewMilestoneWorker(rec, 4)
	w.Enqueue(services.MilestoneEvent{CountryCode: "ZA", Type: "registration"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	assert.Zero(t, w.Pending())
	assert.Zero(t, rec.count())
}
