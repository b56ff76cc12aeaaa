package botreply

import (
	"context"
	"log/slog"
	"time"

	"github.com/weliao/weliao/internal/database"
)

// Job identifies one orchestration run: a group and the message whose
// persistence triggered it.
type Job struct {
	GroupID   string
	MessageID string
}

// Dispatcher is the fire-and-forget boundary between the message-send path
// and bot orchestration. Sends enqueue a Job after the message is durably
// stored and return immediately; a worker goroutine consumes the queue and
// runs the orchestrator. Bot replies re-enter the queue, bounded by the
// chain-depth limit so bot-to-bot conversation cannot recurse forever.
type Dispatcher struct {
	jobs          chan Job
	orchestrator  *Orchestrator
	store         database.Store
	log           *slog.Logger
	maxChainDepth int
	runTimeout    time.Duration
}

// NewDispatcher creates a dispatcher with the given queue capacity.
func NewDispatcher(
	orchestrator *Orchestrator,
	store database.Store,
	log *slog.Logger,
	queueSize int,
	maxChainDepth int,
	runTimeout time.Duration,
) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if runTimeout <= 0 {
		runTimeout = 3 * time.Minute
	}
	return &Dispatcher{
		jobs:          make(chan Job, queueSize),
		orchestrator:  orchestrator,
		store:         store,
		log:           log.With("component", "reply_dispatcher"),
		maxChainDepth: maxChainDepth,
		runTimeout:    runTimeout,
	}
}

// Enqueue hands a job to the worker without blocking the caller. When the
// queue is full the job is dropped and logged; the sender's request has
// already succeeded at this point and must not be held up.
func (d *Dispatcher) Enqueue(job Job) bool {
	select {
	case d.jobs <- job:
		return true
	default:
		d.log.Warn("Reply queue full, dropping orchestration job",
			"group_id", job.GroupID, "message_id", job.MessageID)
		return false
	}
}

// Run consumes the job queue until the context is cancelled. It is intended
// to be supervised by the server's run group.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("Reply dispatcher started", "queue_capacity", cap(d.jobs), "max_chain_depth", d.maxChainDepth)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("Reply dispatcher stopping", "pending_jobs", len(d.jobs))
			return nil
		case job := <-d.jobs:
			d.process(ctx, job)
		}
	}
}

// process executes one orchestration run and re-enqueues replies that are
// still under the chain-depth bound.
func (d *Dispatcher) process(ctx context.Context, job Job) {
	log := d.log.With("group_id", job.GroupID, "message_id", job.MessageID)

	runCtx, cancel := context.WithTimeout(ctx, d.runTimeout)
	defer cancel()

	trigger, err := d.store.GetMessage(runCtx, job.MessageID)
	if err != nil {
		log.ErrorContext(runCtx, "Failed to load triggering message", "error", err)
		return
	}
	if trigger.GroupID != job.GroupID {
		log.WarnContext(runCtx, "Triggering message belongs to a different group", "actual_group_id", trigger.GroupID)
		return
	}

	replies := d.orchestrator.Run(runCtx, job.GroupID, trigger)

	for _, reply := range replies {
		if reply.BotHop >= d.maxChainDepth {
			log.DebugContext(runCtx, "Chain depth limit reached, not re-triggering",
				"reply_id", reply.ID, "hop", reply.BotHop)
			continue
		}
		d.Enqueue(Job{GroupID: reply.GroupID, MessageID: reply.ID})
	}
}
