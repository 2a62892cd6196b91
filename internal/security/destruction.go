// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package security

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/oops"
)

// Destruction trigger types.
const (
	TriggerFailedLoginThreshold = "failed_login_threshold"
	TriggerUserRequest          = "user_request"
	TriggerAdminAction          = "admin_action"
)

// Forensic residue levels recorded on the destruction log. Lower means
// less recoverable data remains after the wipe.
const (
	ResidueLogOnly = 1 // only the destruction log row itself survives
	ResiduePartial = 2
)

// destroyedDataTypes lists the categories erased by a destruction.
var destroyedDataTypes = []string{"user_data", "sessions", "security_events", "subscriptions"}

// ErrDestructionFailed is returned when a destruction transaction could
// not commit. The account state is unchanged; partial destruction is
// never observable.
var ErrDestructionFailed = errors.New("destruction failed")

var destructionsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "veilchat_destructions_total",
	Help: "Total number of account destructions by trigger type and outcome",
}, []string{"trigger_type", "outcome"})

// DestructionLog records one executed destruction. The row is written
// inside the destruction transaction, before the destructive statements,
// so it is the sole surviving forensic record of why the account vanished.
type DestructionLog struct {
	ID                   ulid.ULID
	UserID               ulid.ULID
	TriggerType          string
	DataTypesDestroyed   []string
	ExecutionTime        time.Time
	Success              bool
	ForensicResidueLevel int
}

// DB is the transactional handle the coordinator operates on. Satisfied
// by *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Coordinator erases a user's account and every associated record in a
// single serializable transaction. The transition is Armed -> Executed
// with nothing in between: either every row is gone or none are.
// Triggering twice on the same user fails cleanly on the second call.
type Coordinator struct {
	db     DB
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(db DB, logger *slog.Logger) (*Coordinator, error) {
	if db == nil {
		return nil, oops.Code("DESTRUCTION_INVALID_DEPS").Errorf("database handle is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		db:     db,
		logger: logger.With("component", "destruction"),
	}, nil
}

// Trigger irreversibly destroys the user's account. The destruction log
// row is written first inside the same transaction, then sessions,
// security events, subscriptions, and finally the user row are deleted.
// Any failure rolls back the whole transaction and returns
// ErrDestructionFailed. Never retry: a failure on an already-destroyed
// user is the expected outcome of a concurrent trigger, and a failure on
// a live user must be investigated, not looped.
func (c *Coordinator) Trigger(ctx context.Context, userID ulid.ULID, triggerType string) error {
	tx, err := c.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		destructionsCounter.WithLabelValues(triggerType, "failed").Inc()
		return oops.Code("DESTRUCTION_BEGIN_FAILED").
			With("user_id", userID.String()).
			Wrap(errors.Join(ErrDestructionFailed, err))
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op
	}()

	record := DestructionLog{
		ID:                   ulid.Make(),
		UserID:               userID,
		TriggerType:          triggerType,
		DataTypesDestroyed:   destroyedDataTypes,
		ExecutionTime:        time.Now(),
		Success:              true,
		ForensicResidueLevel: ResidueLogOnly,
	}

	// Write-ahead audit: the log row precedes the destructive statements
	// so a committed destruction always has its forensic record.
	_, err = tx.Exec(ctx, `
		INSERT INTO destruction_logs (
			id, user_id, trigger_type, data_types_destroyed,
			execution_time, success, forensic_residue_level
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		record.ID.String(),
		record.UserID.String(),
		record.TriggerType,
		record.DataTypesDestroyed,
		record.ExecutionTime,
		record.Success,
		record.ForensicResidueLevel,
	)
	if err != nil {
		return c.fail(userID, triggerType, "insert destruction log", err)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID.String()); err != nil {
		return c.fail(userID, triggerType, "delete sessions", err)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM security_events WHERE user_id = $1`, userID.String()); err != nil {
		return c.fail(userID, triggerType, "delete security events", err)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM subscriptions WHERE user_id = $1`, userID.String()); err != nil {
		return c.fail(userID, triggerType, "delete subscriptions", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID.String())
	if err != nil {
		return c.fail(userID, triggerType, "delete user", err)
	}
	if result.RowsAffected() == 0 {
		// Concurrent trigger already destroyed this user. Roll everything
		// back so the destruction log is not duplicated.
		destructionsCounter.WithLabelValues(triggerType, "failed").Inc()
		return oops.Code("DESTRUCTION_USER_GONE").
			With("user_id", userID.String()).
			With("trigger_type", triggerType).
			Wrap(ErrDestructionFailed)
	}

	if err := tx.Commit(ctx); err != nil {
		return c.fail(userID, triggerType, "commit", err)
	}

	destructionsCounter.WithLabelValues(triggerType, "executed").Inc()
	c.logger.Warn("user account destroyed",
		"user_id", userID.String(),
		"trigger_type", triggerType,
		"data_types", record.DataTypesDestroyed,
	)

	return nil
}

// fail wraps a step failure; the deferred rollback undoes prior steps.
func (c *Coordinator) fail(userID ulid.ULID, triggerType, operation string, err error) error {
	destructionsCounter.WithLabelValues(triggerType, "failed").Inc()
	return oops.Code("DESTRUCTION_FAILED").
		With("user_id", userID.String()).
		With("trigger_type", triggerType).
		With("operation", operation).
		Wrap(errors.Join(ErrDestructionFailed, err))
}
