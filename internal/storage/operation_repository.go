package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/listsync/internal/models"
	"github.com/listsync/internal/types"
)

// Sentinel errors for operation status transitions.
var (
	// ErrOperationNotFound means no record exists with the given id.
	ErrOperationNotFound = errors.New("operation not found")
	// ErrClaimLost means another executor claimed the record first, the
	// record is no longer eligible, or a sibling operation for the same
	// (owner, list) is already in progress.
	ErrClaimLost = errors.New("operation claim lost")
	// ErrNotCancellable means the record has already started or finished.
	ErrNotCancellable = errors.New("operation is not cancellable")
	// ErrNotTerminal means the record may not be deleted yet.
	ErrNotTerminal = errors.New("operation is not in a terminal status")
)

const operationColumns = `
	id, operation_type, owner_id, target_list_id, payload, status,
	retry_count, last_attempted_at, next_eligible_at, error_message, created_at
`

// OperationRepository handles operation record persistence. Every status
// transition is a conditional update so two processor runs can never drive
// the same record at once.
type OperationRepository struct {
	db *PostgresDB
}

// NewOperationRepository creates a new operation repository
func NewOperationRepository(db *PostgresDB) *OperationRepository {
	return &OperationRepository{db: db}
}

// Create inserts a new pending operation record.
func (r *OperationRepository) Create(ctx context.Context, op *models.OperationRecord) error {
	payload, err := models.EncodePayload(op.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO list_operations (
			id, operation_type, owner_id, target_list_id, payload, status,
			retry_count, last_attempted_at, next_eligible_at, error_message, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.Pool().Exec(ctx, query,
		op.ID,
		op.OperationType,
		op.OwnerID,
		op.TargetListID,
		payload,
		op.Status,
		op.RetryCount,
		op.LastAttemptedAt,
		op.NextEligibleAt,
		op.ErrorMessage,
		op.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}

	return nil
}

// GetByID retrieves an operation record by id.
func (r *OperationRepository) GetByID(ctx context.Context, id string) (*models.OperationRecord, error) {
	query := `SELECT ` + operationColumns + ` FROM list_operations WHERE id = $1`

	op, err := scanOperation(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOperationNotFound
		}
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}

	return op, nil
}

// Claim atomically moves a pending record to in_progress. The claim fails
// when the record was already claimed, is no longer eligible, or when any
// sibling record for the same (owner_id, target_list_id) is already
// in_progress. Losing the race returns ErrClaimLost.
func (r *OperationRepository) Claim(ctx context.Context, id string) (*models.OperationRecord, error) {
	query := `
		UPDATE list_operations
		SET status = $2, last_attempted_at = now()
		WHERE id = $1
		  AND status = $3
		  AND next_eligible_at <= now()
		  AND NOT EXISTS (
			SELECT 1 FROM list_operations sibling
			WHERE sibling.owner_id = list_operations.owner_id
			  AND sibling.target_list_id IS NOT DISTINCT FROM list_operations.target_list_id
			  AND sibling.status = $2
		  )
		RETURNING ` + operationColumns

	op, err := scanOperation(r.db.Pool().QueryRow(ctx, query, id, types.StatusInProgress, types.StatusPending))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClaimLost
		}
		return nil, fmt.Errorf("failed to claim operation: %w", err)
	}

	return op, nil
}

// MarkCompleted moves a claimed record to completed. For a create_list
// operation the remotely assigned list id is recorded on the record once
// known.
func (r *OperationRepository) MarkCompleted(ctx context.Context, id string, resolvedListID *string) error {
	query := `
		UPDATE list_operations
		SET status = $2,
			error_message = NULL,
			target_list_id = COALESCE($3, target_list_id)
		WHERE id = $1 AND status = $4
	`

	result, err := r.db.Pool().Exec(ctx, query, id, types.StatusCompleted, resolvedListID, types.StatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to mark operation completed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrOperationNotFound
	}

	return nil
}

// MarkFailed records a failed attempt on a claimed record. When retries
// remain the record goes back to pending with the given eligibility time;
// otherwise it becomes failed_permanent and the processor stops scheduling
// it.
func (r *OperationRepository) MarkFailed(ctx context.Context, id string, retryCount int, errMsg string, nextEligibleAt time.Time, permanent bool) error {
	status := types.StatusPending
	if permanent {
		status = types.StatusFailedPermanent
	}

	query := `
		UPDATE list_operations
		SET status = $2, retry_count = $3, error_message = $4, next_eligible_at = $5
		WHERE id = $1 AND status = $6
	`

	result, err := r.db.Pool().Exec(ctx, query, id, status, retryCount, errMsg, nextEligibleAt, types.StatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to mark operation failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrOperationNotFound
	}

	return nil
}

// Cancel cancels a record that has not started yet. An in_progress record
// cannot be cancelled; its remote outcome must be recorded first.
func (r *OperationRepository) Cancel(ctx context.Context, id string) error {
	query := `
		UPDATE list_operations
		SET status = $2
		WHERE id = $1 AND status = $3
	`

	result, err := r.db.Pool().Exec(ctx, query, id, types.StatusCancelled, types.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel operation: %w", err)
	}

	if result.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrNotCancellable
	}

	return nil
}

// Delete removes a record from the queue. Only terminal records may be
// deleted so an in-flight mutation is never lost track of.
func (r *OperationRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM list_operations WHERE id = $1 AND status = ANY($2)`

	terminal := []types.OperationStatus{types.StatusCompleted, types.StatusFailedPermanent, types.StatusCancelled}

	result, err := r.db.Pool().Exec(ctx, query, id, terminal)
	if err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}

	if result.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrNotTerminal
	}

	return nil
}

// eligibleQuery selects pending records whose backoff has elapsed, skipping
// any record with an older unfinished sibling in the same
// (owner_id, target_list_id) chain. Only chain heads are surfaced so
// mutations against one list keep their enqueue order while distinct lists
// drain in parallel.
const eligibleQuery = `
	SELECT ` + operationColumns + `
	FROM list_operations o
	WHERE o.status = $1
	  AND o.next_eligible_at <= now()
	  AND NOT EXISTS (
		SELECT 1 FROM list_operations sibling
		WHERE sibling.owner_id = o.owner_id
		  AND sibling.target_list_id IS NOT DISTINCT FROM o.target_list_id
		  AND sibling.status IN ($1, $2)
		  AND (sibling.created_at, sibling.id) < (o.created_at, o.id)
	  )
`

// ListEligible retrieves eligible records across all owners, oldest first.
func (r *OperationRepository) ListEligible(ctx context.Context, limit int) ([]*models.OperationRecord, error) {
	query := eligibleQuery + ` ORDER BY o.created_at ASC, o.id ASC LIMIT $3`

	rows, err := r.db.Pool().Query(ctx, query, types.StatusPending, types.StatusInProgress, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible operations: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// ListEligibleForOwner retrieves eligible records for one owner, oldest first.
func (r *OperationRepository) ListEligibleForOwner(ctx context.Context, ownerID string, limit int) ([]*models.OperationRecord, error) {
	query := eligibleQuery + ` AND o.owner_id = $3 ORDER BY o.created_at ASC, o.id ASC LIMIT $4`

	rows, err := r.db.Pool().Query(ctx, query, types.StatusPending, types.StatusInProgress, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible operations for owner: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// ListByOwner retrieves all records for one owner, newest first.
func (r *OperationRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.OperationRecord, error) {
	query := `SELECT ` + operationColumns + ` FROM list_operations WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations by owner: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// Stats returns the queue counters for one owner.
func (r *OperationRepository) Stats(ctx context.Context, ownerID string) (*models.QueueStats, error) {
	query := `
		SELECT
			count(*) FILTER (WHERE status IN ($2, $3)),
			count(*) FILTER (WHERE status = $4)
		FROM list_operations
		WHERE owner_id = $1
	`

	stats := &models.QueueStats{OwnerID: ownerID}
	err := r.db.Pool().QueryRow(ctx, query, ownerID,
		types.StatusPending, types.StatusInProgress, types.StatusFailedPermanent,
	).Scan(&stats.PendingCount, &stats.FailedCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	return stats, nil
}

// Requeue moves an owner's failed_permanent records back to pending with a
// fresh retry budget. Returns the number of records requeued.
func (r *OperationRepository) Requeue(ctx context.Context, ownerID string) (int, error) {
	query := `
		UPDATE list_operations
		SET status = $2, retry_count = 0, next_eligible_at = now(), error_message = NULL
		WHERE owner_id = $1 AND status = $3
	`

	result, err := r.db.Pool().Exec(ctx, query, ownerID, types.StatusPending, types.StatusFailedPermanent)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue operations: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// ReclaimStale requeues in_progress records whose last attempt started
// before the cutoff. A claim that old means the process died between Claim
// and the settle call; without this sweep the record, and with it the whole
// (owner_id, target_list_id) chain behind it, would stay wedged forever.
// Returns the number of records reclaimed.
func (r *OperationRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE list_operations
		SET status = $1, next_eligible_at = now()
		WHERE status = $2
		  AND last_attempted_at IS NOT NULL
		  AND last_attempted_at < $3
	`

	result, err := r.db.Pool().Exec(ctx, query, types.StatusPending, types.StatusInProgress, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale operations: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// scanOperation reads one operation record from a row.
func scanOperation(row pgx.Row) (*models.OperationRecord, error) {
	var op models.OperationRecord
	var payload []byte

	err := row.Scan(
		&op.ID,
		&op.OperationType,
		&op.OwnerID,
		&op.TargetListID,
		&payload,
		&op.Status,
		&op.RetryCount,
		&op.LastAttemptedAt,
		&op.NextEligibleAt,
		&op.ErrorMessage,
		&op.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	op.Payload, err = models.DecodePayload(op.OperationType, payload)
	if err != nil {
		return nil, err
	}

	return &op, nil
}

// scanOperations reads all operation records from a result set.
func scanOperations(rows pgx.Rows) ([]*models.OperationRecord, error) {
	var ops []*models.OperationRecord
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return ops, nil
}
