package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const defaultSweepBatch = 500

type PayoutKeyRetentionJobParams struct {
	Logger *logger.Logger
	DB     *gorm.DB
	Batch  int
}

// NewPayoutKeyRetentionJob deletes payout idempotency keys past expires_at,
// shop by shop in bounded batches. One shop failing does not stop the sweep.
func NewPayoutKeyRetentionJob(params PayoutKeyRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &payoutKeyRetentionJob{logg: params.Logger, db: params.DB, batch: batch, now: time.Now}, nil
}

type payoutKeyRetentionJob struct {
	logg  *logger.Logger
	db    *gorm.DB
	batch int
	now   func() time.Time
}

func (j *payoutKeyRetentionJob) Name() string { return "payout-idempotency-retention" }

func (j *payoutKeyRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var shops []uuid.UUID
	if err := j.db.WithContext(ctx).
		Model(&models.PayoutIdempotencyKey{}).
		Distinct("shop_id").
		Where("expires_at <= ?", now).
		Pluck("shop_id", &shops).Error; err != nil {
		return fmt.Errorf("list shops with expired keys: %w", err)
	}

	var (
		errs    error
		deleted int64
	)
	for _, shopID := range shops {
		n, err := j.sweepShop(ctx, shopID, now)
		deleted += n
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("shop %s: %w", shopID, err))
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"shops":        len(shops),
		"keys_deleted": deleted,
		"failures":     len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "payout idempotency sweep complete")
	return errs
}

func (j *payoutKeyRetentionJob) sweepShop(ctx context.Context, shopID uuid.UUID, now time.Time) (int64, error) {
	var total int64
	for {
		var ids []uuid.UUID
		if err := j.db.WithContext(ctx).
			Model(&models.PayoutIdempotencyKey{}).
			Where("shop_id = ? AND expires_at <= ?", shopID, now).
			Limit(j.batch).
			Pluck("id", &ids).Error; err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}
		res := j.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.PayoutIdempotencyKey{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
		if len(ids) < j.batch {
			return total, nil
		}
	}
}
