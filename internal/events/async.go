package events

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"fleettrack/internal/metrics"
)

const publishTimeout = 5 * time.Second

// ErrBufferFull is returned when an event is dropped because the buffer is
// full.
var ErrBufferFull = errors.New("event buffer full")

type job struct {
	topic, key string
	payload    any
}

// AsyncPublisher decouples callers from the bus. Publish never blocks: it
// queues the event for a worker or drops it when the buffer is full.
type AsyncPublisher struct {
	inner  Publisher
	jobs   chan job
	logger *log.Entry

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

var _ Publisher = (*AsyncPublisher)(nil)

func NewAsyncPublisher(inner Publisher, buffer, workers int, logger *log.Entry) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	p := &AsyncPublisher{
		inner:  inner,
		jobs:   make(chan job, buffer),
		logger: logger.WithField("component", "events"),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Publish queues the event. The context only matters to the caller; the
// worker publishes with its own timeout.
func (p *AsyncPublisher) Publish(_ context.Context, topic, key string, payload any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.EventsDropped.Add(1)
		return ErrBufferFull
	}

	select {
	case p.jobs <- job{topic: topic, key: key, payload: payload}:
		return nil
	default:
		metrics.EventsDropped.Add(1)
		return ErrBufferFull
	}
}

func (p *AsyncPublisher) run() {
	defer p.wg.Done()
	for j := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := p.inner.Publish(ctx, j.topic, j.key, j.payload)
		cancel()
		if err != nil {
			metrics.EventsFailed.Add(1)
			p.logger.WithError(err).WithFields(log.Fields{"topic": j.topic, "key": j.key}).Error("publish failed")
			continue
		}
		metrics.EventsPublished.Add(1)
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (p *AsyncPublisher) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
		p.wg.Wait()
	})
}
