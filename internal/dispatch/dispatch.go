// Package dispatch carries user commands from the explorer to the daemon.
// Sends are fire-and-forget: no result is surfaced to the caller, and no
// optimistic local mutation happens. State changes come back through the
// status stores on a later observation cycle.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quayside/resman/internal/metrics"
)

// Endpoint identifies a daemon operation. Identifiers are fixed; the
// transport maps them to concrete routes.
type Endpoint string

const (
	EndpointSetResourceConfig Endpoint = "project.setResourceConfig"
	EndpointDeleteResource    Endpoint = "project.deleteResource"
	EndpointRenameResource    Endpoint = "project.renameResource"
	EndpointStartResource     Endpoint = "server.startResource"
	EndpointStopResource      Endpoint = "server.stopResource"
	EndpointRestartResource   Endpoint = "server.restartResource"
)

// Message is one command in flight.
type Message struct {
	Endpoint Endpoint
	Payload  any
}

// Transport delivers a message to the daemon.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// Sender is the narrow interface views depend on.
type Sender interface {
	Send(endpoint Endpoint, payload any)
}

// Queue is an asynchronous Sender backed by a single delivery worker.
// A full queue drops the message rather than blocking the UI thread.
type Queue struct {
	transport Transport
	ch        chan Message
	timeout   time.Duration
	logger    *slog.Logger

	stopOnce sync.Once
	done     chan struct{}
	drained  chan struct{}
}

const defaultQueueDepth = 64

func NewQueue(transport Transport, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		transport: transport,
		ch:        make(chan Message, defaultQueueDepth),
		timeout:   10 * time.Second,
		logger:    logger,
		done:      make(chan struct{}),
		drained:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Send enqueues the command and returns immediately. Delivery failures are
// logged and counted, never returned.
func (q *Queue) Send(endpoint Endpoint, payload any) {
	select {
	case <-q.done:
		q.logger.Warn("dispatch after close dropped", "endpoint", string(endpoint))
		return
	default:
	}
	select {
	case q.ch <- Message{Endpoint: endpoint, Payload: payload}:
		metrics.CommandDispatched(string(endpoint))
	default:
		q.logger.Warn("dispatch queue full, command dropped", "endpoint", string(endpoint))
		metrics.DispatchFailed(string(endpoint))
	}
}

func (q *Queue) run() {
	defer close(q.drained)
	for {
		select {
		case <-q.done:
			// drain what is already queued, then exit
			for {
				select {
				case msg := <-q.ch:
					q.deliver(msg)
				default:
					return
				}
			}
		case msg := <-q.ch:
			q.deliver(msg)
		}
	}
}

func (q *Queue) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if err := q.transport.Deliver(ctx, msg); err != nil {
		q.logger.Error("command delivery failed", "endpoint", string(msg.Endpoint), "error", err)
		metrics.DispatchFailed(string(msg.Endpoint))
	}
}

// Close stops accepting new commands, delivers what is queued and returns.
func (q *Queue) Close() {
	q.stopOnce.Do(func() { close(q.done) })
	<-q.drained
}

// ConfigPayload is the body of project.setResourceConfig.
type ConfigPayload struct {
	ResourceName string `json:"resource_name"`
	Config       any    `json:"config"`
}

// RenamePayload is the body of project.renameResource.
type RenamePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}
