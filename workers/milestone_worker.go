package workers

import (
	"context"
	"log"
	"time"

	"blackpass-api/services"

	"github.com/prometheus/client_golang/prometheus"
)

var milestonesDropped = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "country_milestones_dropped_total",
	Help: "Country-activity milestones dropped because the queue was full or recording failed",
})

// Collectors returns the worker metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{milestonesDropped}
}

// MilestoneRecorder persists one milestone.
type MilestoneRecorder interface {
	Record(ctx context.Context, m services.MilestoneEvent) error
}

// MilestoneWorker drains country-activity milestones off the request path.
// Failures are logged and counted; they never reach the caller.
type MilestoneWorker struct {
	queue    chan services.MilestoneEvent
	recorder MilestoneRecorder
	timeout  time.Duration
}

func NewMilestoneWorker(recorder MilestoneRecorder, size int) *MilestoneWorker {
	if size <= 0 {
		size = 256
	}
	return &MilestoneWorker{
		queue:    make(chan services.MilestoneEvent, size),
		recorder: recorder,
		timeout:  5 * time.Second,
	}
}

// Enqueue hands m to the worker without blocking. It reports false when the
// queue is full and the milestone was dropped.
func (w *MilestoneWorker) Enqueue(m services.MilestoneEvent) bool {
	select {
	case w.queue <- m:
		return true
	default:
		milestonesDropped.Inc()
		return false
	}
}

// Run processes milestones until ctx is cancelled, then flushes what is queued.
func (w *MilestoneWorker) Run(ctx context.Context) {
	log.Println("🌍 [MilestoneWorker] started")
	for {
		select {
		case <-ctx.Done():
			w.drain()
			log.Println("[MilestoneWorker] stopped")
			return
		case m := <-w.queue:
			w.process(context.Background(), m)
		}
	}
}

func (w *MilestoneWorker) drain() {
	for {
		select {
		case m := <-w.queue:
			w.process(context.Background(), m)
		default:
			return
		}
	}
}

func (w *MilestoneWorker) process(parent context.Context, m services.MilestoneEvent) {
	ctx, cancel := context.WithTimeout(parent, w.timeout)
	defer cancel()

	if err := w.recorder.Record(ctx, m); err != nil {
		milestonesDropped.Inc()
		log.Printf("❌ [MilestoneWorker] failed to record %s for %s: %v", m.Type, m.CountryCode, err)
		return
	}
	log.Printf("🌍 [MilestoneWorker] recorded %s for %s (+%d xp)", m.Type, m.CountryCode, m.XPGained)
}

// Pending returns the number of queued milestones.
func (w *MilestoneWorker) Pending() int {
	return len(w.queue)
}
