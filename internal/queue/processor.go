package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/listsync/internal/logging"
	"github.com/listsync/internal/models"
	"github.com/listsync/internal/storage"
)

// Processor iterates eligible operation records and drives them through the
// executor. It runs in two modes: a global periodic loop that drains the
// whole queue, and a scoped pass over one owner's records used for "retry
// my operations now" and right after a session is restored.
type Processor struct {
	store    OperationStore
	executor *Executor
	logger   *logging.Logger

	pollInterval time.Duration
	batchSize    int
	staleAfter   time.Duration
	workerSem    chan struct{}

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// ProcessorConfig holds configuration for the queue processor.
type ProcessorConfig struct {
	Store        OperationStore
	Executor     *Executor
	PollInterval time.Duration
	BatchSize    int
	Workers      int
	StaleAfter   time.Duration
	Logger       *logging.Logger
}

// NewProcessor creates a new queue processor.
func NewProcessor(cfg *ProcessorConfig) (*Processor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("operation store cannot be nil")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 15 * time.Second
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}

	staleAfter := cfg.StaleAfter
	if staleAfter == 0 {
		staleAfter = 5 * time.Minute
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Processor{
		store:        cfg.Store,
		executor:     cfg.Executor,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		staleAfter:   staleAfter,
		workerSem:    make(chan struct{}, workers),
	}, nil
}

// Start begins the global periodic processing loop. An initial drain pass
// runs immediately so operations queued before a restart are not left
// waiting for the first tick.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("processor already started")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.run(ctx)

	return nil
}

// Stop gracefully stops the periodic loop and waits for in-flight
// operations to record their outcome.
func (p *Processor) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("processor not started")
	}
	p.running = false
	close(p.stopCh)
	doneCh := p.doneCh
	p.mu.Unlock()

	<-doneCh
	return nil
}

func (p *Processor) run(ctx context.Context) {
	defer close(p.doneCh)

	// startup drain
	p.ReclaimStale(ctx)
	p.ProcessAll(ctx)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.ReclaimStale(ctx)
			p.ProcessAll(ctx)
		}
	}
}

// ReclaimStale requeues records stranded in_progress by a crash between the
// claim and its settle call. Without the sweep a stranded record blocks its
// whole (owner, list) chain across restarts. Returns the number reclaimed.
func (p *Processor) ReclaimStale(ctx context.Context) int {
	reclaimed, err := p.store.ReclaimStale(ctx, time.Now().Add(-p.staleAfter))
	if err != nil {
		p.logger.WithError(err).Error("Failed to reclaim stale operations")
		return 0
	}
	if reclaimed > 0 {
		p.logger.WithField("count", reclaimed).Warn("Requeued operations stranded by an interrupted run")
	}
	return reclaimed
}

// ProcessAll runs one global pass over eligible records across all owners,
// oldest first. Returns the number of records attempted.
func (p *Processor) ProcessAll(ctx context.Context) int {
	ops, err := p.store.ListEligible(ctx, p.batchSize)
	if err != nil {
		p.logger.WithError(err).Error("Failed to list eligible operations")
		return 0
	}

	return p.processBatch(ctx, ops)
}

// ProcessOwner runs one scoped pass over a single owner's eligible records,
// oldest first. Other owners' records are untouched.
func (p *Processor) ProcessOwner(ctx context.Context, ownerID string) int {
	ops, err := p.store.ListEligibleForOwner(ctx, ownerID, p.batchSize)
	if err != nil {
		p.logger.WithError(err).WithField("ownerId", ownerID).Error("Failed to list eligible operations for owner")
		return 0
	}

	return p.processBatch(ctx, ops)
}

// processBatch attempts every record in the batch. Records are dispatched
// to the worker pool and each outcome stands alone: one permanently failed
// operation never stalls the rest of the batch. Records sharing a
// (owner, list) key are serialized by the store's eligibility and claim
// rules, not here.
func (p *Processor) processBatch(ctx context.Context, ops []*models.OperationRecord) int {
	if len(ops) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	attempted := 0

	for _, op := range ops {
		select {
		case p.workerSem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return attempted
		}

		attempted++
		wg.Add(1)

		go func(op *models.OperationRecord) {
			defer wg.Done()
			defer func() { <-p.workerSem }()

			status, err := p.executor.Execute(ctx, op.ID)
			if err != nil {
				if errors.Is(err, storage.ErrClaimLost) {
					// a concurrent run got there first; skip
					return
				}
				p.logger.WithError(err).WithFields(map[string]interface{}{
					"operationId": op.ID,
					"ownerId":     op.OwnerID,
				}).Error("Failed to execute operation")
				return
			}

			p.logger.WithFields(map[string]interface{}{
				"operationId": op.ID,
				"ownerId":     op.OwnerID,
				"status":      string(status),
			}).Debug("Operation processed")
		}(op)
	}

	wg.Wait()
	return attempted
}
