package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/feedledger-backend/pkg/logger"
)

const day = 24 * time.Hour

// Retention defaults, in days unless noted.
const (
	outboxRetentionDays = 30
	dlqRetentionDays    = 90
	outboxMinAttempts   = 5
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	// DLQ is optional; dead letters are kept forever without it.
	DLQ          dlqRetentionRepo
	Retention    int
	DLQRetention int
	// MinAttempts is the attempt count after which an undelivered row past
	// the retention window is dropped too.
	MinAttempts int
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqRetentionRepo interface {
	DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	outbox      outboxRetentionRepo
	dlq         dlqRetentionRepo
	keepOutbox  time.Duration
	keepDLQ     time.Duration
	minAttempts int
	now         func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		outbox:      params.Repository,
		dlq:         params.DLQ,
		keepOutbox:  time.Duration(orDefault(params.Retention, outboxRetentionDays)) * day,
		keepDLQ:     time.Duration(orDefault(params.DLQRetention, dlqRetentionDays)) * day,
		minAttempts: orDefault(params.MinAttempts, outboxMinAttempts),
		now:         time.Now,
	}, nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run prunes the outbox and the dead letter table in separate transactions
// so one failing table does not keep the other growing.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	fields := map[string]any{"min_attempts": j.minAttempts}

	outboxCutoff := now.Add(-j.keepOutbox)
	fields["outbox_cutoff"] = outboxCutoff
	err := j.prune(ctx, "outbox", fields, func(tx *gorm.DB) (int64, error) {
		return j.outbox.DeletePublishedBefore(ctx, tx, outboxCutoff, j.minAttempts)
	})

	if j.dlq != nil {
		dlqCutoff := now.Add(-j.keepDLQ)
		fields["dlq_cutoff"] = dlqCutoff
		err = multierr.Append(err, j.prune(ctx, "dlq", fields, func(tx *gorm.DB) (int64, error) {
			return j.dlq.DeleteBefore(ctx, tx, dlqCutoff)
		}))
	}
	if err != nil {
		return err
	}

	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention cleanup complete")
	return nil
}

func (j *outboxRetentionJob) prune(ctx context.Context, table string, fields map[string]any, del func(*gorm.DB) (int64, error)) error {
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		deleted, err = del(tx)
		return err
	})
	if err != nil {
		return fmt.Errorf("prune %s: %w", table, err)
	}
	fields[table+"_rows_deleted"] = deleted
	return nil
}
