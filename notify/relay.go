package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Relay drains pending outbox messages on a schedule and hands them to the
// Sender. Rows are claimed with FOR UPDATE SKIP LOCKED so multiple relays can
// run side by side.
type Relay struct {
	pool        *pgxpool.Pool
	sender      Sender
	logger      *zap.Logger
	cron        *cron.Cron
	batchSize   int
	maxAttempts int
}

func NewRelay(pool *pgxpool.Pool, sender Sender, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		pool:        pool,
		sender:      sender,
		logger:      logger,
		cron:        cron.New(cron.WithSeconds()),
		batchSize:   50,
		maxAttempts: 5,
	}
}

// Start schedules periodic drains. Schedule uses cron syntax with seconds,
// e.g. "@every 30s".
func (r *Relay) Start(schedule string) error {
	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.Drain(ctx); err != nil {
			r.logger.Error("outbox drain failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("notify: schedule relay: %w", err)
	}
	r.cron.Start()
	r.logger.Info("outbox relay started", zap.String("schedule", schedule))
	return nil
}

// Stop waits for a running drain to finish.
func (r *Relay) Stop(ctx context.Context) {
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	r.logger.Info("outbox relay stopped")
}

// Drain processes one batch of pending messages.
func (r *Relay) Drain(ctx context.Context) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("notify: begin drain: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, topic, payload, attempts
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, r.batchSize)
	if err != nil {
		return fmt.Errorf("notify: claim batch: %w", err)
	}

	var batch []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Topic, &msg.Payload, &msg.Attempts); err != nil {
			rows.Close()
			return fmt.Errorf("notify: scan message: %w", err)
		}
		batch = append(batch, msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("notify: iterate batch: %w", err)
	}

	for _, msg := range batch {
		if sendErr := r.sender.Send(ctx, msg.Topic, msg.Payload); sendErr != nil {
			r.logger.Warn("notification delivery failed",
				zap.String("outbox_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Int("attempts", msg.Attempts+1),
				zap.Error(sendErr))

			next := StatusPending
			if msg.Attempts+1 >= r.maxAttempts {
				next = StatusDead
			}
			if _, err := tx.Exec(ctx, `
				UPDATE outbox SET attempts = attempts + 1, status = $2::outbox_status
				WHERE id = $1`, msg.ID, next); err != nil {
				return fmt.Errorf("notify: record failure: %w", err)
			}
			continue
		}

		if _, err := tx.Exec(ctx, `
			UPDATE outbox SET status = 'processed', processed_at = now()
			WHERE id = $1`, msg.ID); err != nil {
			return fmt.Errorf("notify: mark processed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("notify: commit drain: %w", err)
	}
	return nil
}
