package notifications

import (
	"sync"

	"github.com/ducminhle1904/crypto-trade-gate/internal/logger"
)

type alert struct {
	level   string
	message string
}

// Dispatcher makes a Notifier fire-and-forget. Alerts are queued and sent
// from one goroutine; failures are logged and never reach the caller.
// Emergency alerts wait for queue space, others are dropped when it is full.
type Dispatcher struct {
	notifier Notifier
	logger   *logger.Logger
	queue    chan alert
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the delivery goroutine
func NewDispatcher(notifier Notifier, log *logger.Logger, queueSize int) *Dispatcher {
	if notifier == nil {
		notifier = Nop{}
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		notifier: notifier,
		logger:   log,
		queue:    make(chan alert, queueSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for a := range d.queue {
		if err := d.notifier.SendAlert(a.level, a.message); err != nil {
			d.logger.LogWarning("notification", "failed to send %s alert: %v", a.level, err)
		}
	}
}

// SendAlert queues the alert and always returns nil
func (d *Dispatcher) SendAlert(level, message string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil
	}

	a := alert{level: level, message: message}
	if level == LevelEmergency {
		d.queue <- a
		return nil
	}
	select {
	case d.queue <- a:
	default:
		d.logger.LogWarning("notification", "queue full, dropped %s alert", level)
	}
	return nil
}

// Close drains the queue and stops the delivery goroutine
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}
