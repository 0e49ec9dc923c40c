package finance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/audit"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

const (
	maxKeyLen       = 128
	maxNoteLen      = 500
	defaultLookback = 30 * 24 * time.Hour
	keyConstraint   = "payout_idempotency_keys_shop_key_uniq"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type auditor interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry)
}

// Summary is a shop's financial position. Window fields cover the requested
// range; balance fields are all-time.
type Summary struct {
	From               time.Time `json:"from"`
	To                 time.Time `json:"to"`
	Orders             int64     `json:"orders"`
	CountableOrders    int64     `json:"countable_orders"`
	GrossTotal         int64     `json:"gross_total"`
	MerchandiseRevenue int64     `json:"merchandise_revenue"`
	ShippingFees       int64     `json:"shipping_fees"`
	Discounts          int64     `json:"discounts"`
	CostOfGoods        int64     `json:"cost_of_goods"`
	PlatformFee        int64     `json:"platform_fee"`
	CountableRefunds   int64     `json:"countable_refunds"`
	Refunds            int64     `json:"refunds"`
	Profit             int64     `json:"profit"`
	NetRevenue         int64     `json:"net_revenue"`
	ReservedPayouts    int64     `json:"reserved_payouts"`
	PaidPayouts        int64     `json:"paid_payouts"`
	AvailableBalance   int64     `json:"available_balance"`
}

// AccountInput is the bank destination for payouts.
type AccountInput struct {
	BankName      string `json:"bank_name" validate:"required,max=120"`
	AccountName   string `json:"account_name" validate:"required,max=120"`
	AccountNumber string `json:"account_number" validate:"required,max=64"`
}

// PayoutResult is returned by RequestPayout. Replayed is true when the
// idempotency key matched an earlier identical request.
type PayoutResult struct {
	Payout   models.Payout `json:"payout"`
	Replayed bool          `json:"replayed"`
}

// ServiceParams wires the finance service.
type ServiceParams struct {
	Tx      txRunner
	Repo    *Repository
	Config  config.FinanceConfig
	Audit   auditor
	Metrics *metrics.OrderMetrics
	Logger  *logger.Logger
}

// Service computes shop finances and manages payouts.
type Service struct {
	tx      txRunner
	repo    *Repository
	feePct  decimal.Decimal
	keyTTL  time.Duration
	audit   auditor
	metrics *metrics.OrderMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("finance repository required")
	}
	ttl := p.Config.PayoutIdempotencyRetention
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		tx:      p.Tx,
		repo:    p.Repo,
		feePct:  p.Config.PlatformFeePercent,
		keyTTL:  ttl,
		audit:   p.Audit,
		metrics: p.Metrics,
		logg:    p.Logger,
		now:     time.Now,
	}, nil
}

// PlatformFee is floor(merchandise * pct / 100).
func PlatformFee(merchandise int64, pct decimal.Decimal) int64 {
	if merchandise <= 0 || pct.IsZero() {
		return 0
	}
	return decimal.NewFromInt(merchandise).Mul(pct).Div(decimal.NewFromInt(100)).Floor().IntPart()
}

// Summary aggregates the shop's orders created in [from, to]. A zero range
// defaults to the last 30 days.
func (s *Service) Summary(ctx context.Context, shopID uuid.UUID, from, to time.Time) (Summary, error) {
	if to.IsZero() {
		to = s.now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-defaultLookback)
	}
	if from.After(to) {
		return Summary{}, pkgerrors.New(pkgerrors.CodeValidation, "from must not be after to")
	}
	w := Window{From: from, To: to}
	out := Summary{From: from, To: to}

	var totals orderTotals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Orders, err = s.repo.CountOrders(gctx, shopID, w)
		return err
	})
	g.Go(func() (err error) {
		totals, err = s.repo.CountableTotals(gctx, shopID, w)
		return err
	})
	g.Go(func() (err error) {
		out.CostOfGoods, err = s.repo.CostOfGoods(gctx, shopID, w)
		return err
	})
	g.Go(func() (err error) {
		out.CountableRefunds, err = s.repo.SuccessfulRefunds(gctx, shopID, w, true)
		return err
	})
	g.Go(func() (err error) {
		out.Refunds, err = s.repo.SuccessfulRefunds(gctx, shopID, w, false)
		return err
	})
	g.Go(func() (err error) {
		out.ReservedPayouts, err = s.repo.PayoutTotal(gctx, shopID, enums.PayoutStatusPending, enums.PayoutStatusPaid)
		return err
	})
	g.Go(func() (err error) {
		out.PaidPayouts, err = s.repo.PayoutTotal(gctx, shopID, enums.PayoutStatusPaid)
		return err
	})
	var balance int64
	g.Go(func() (err error) {
		balance, err = s.balanceBeforePayouts(gctx, s.repo, shopID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	out.CountableOrders = totals.Count
	out.GrossTotal = totals.Gross
	out.MerchandiseRevenue = totals.Merchandise
	out.ShippingFees = totals.Shipping
	out.Discounts = totals.Discounts
	out.PlatformFee = PlatformFee(totals.Merchandise, s.feePct)
	out.Profit = totals.Merchandise - out.CostOfGoods - out.PlatformFee - totals.Discounts - out.CountableRefunds
	out.NetRevenue = totals.Gross - out.Refunds
	out.AvailableBalance = clamp(balance - out.ReservedPayouts)
	return out, nil
}

// balanceBeforePayouts is the all-time countable total minus every
// successful refund.
func (s *Service) balanceBeforePayouts(ctx context.Context, repo *Repository, shopID uuid.UUID) (int64, error) {
	totals, err := repo.CountableTotals(ctx, shopID, Window{})
	if err != nil {
		return 0, err
	}
	refunds, err := repo.SuccessfulRefunds(ctx, shopID, Window{}, false)
	if err != nil {
		return 0, err
	}
	return totals.Gross - refunds, nil
}

// AvailableBalance is what the shop may still withdraw.
func (s *Service) AvailableBalance(ctx context.Context, tx *gorm.DB, shopID uuid.UUID) (int64, error) {
	repo := s.repo.WithTx(tx)
	net, err := s.balanceBeforePayouts(ctx, repo, shopID)
	if err != nil {
		return 0, err
	}
	reserved, err := repo.PayoutTotal(ctx, shopID, enums.PayoutStatusPending, enums.PayoutStatusPaid)
	if err != nil {
		return 0, err
	}
	return clamp(net - reserved), nil
}

func (s *Service) GetPayoutAccount(ctx context.Context, shopID uuid.UUID) (*models.PayoutAccount, error) {
	account, err := s.repo.PayoutAccount(ctx, shopID, false)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout account not configured")
	}
	return account, nil
}

func (s *Service) UpsertPayoutAccount(ctx context.Context, shopID uuid.UUID, in AccountInput) (*models.PayoutAccount, error) {
	account := &models.PayoutAccount{
		ShopID:        shopID,
		BankName:      strings.TrimSpace(in.BankName),
		AccountName:   strings.TrimSpace(in.AccountName),
		AccountNumber: strings.TrimSpace(in.AccountNumber),
	}
	if account.BankName == "" || account.AccountName == "" || account.AccountNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank name, account name and account number are required")
	}
	if err := s.repo.UpsertPayoutAccount(ctx, account); err != nil {
		return nil, err
	}
	return s.GetPayoutAccount(ctx, shopID)
}

// RequestPayout reserves amount from the available balance. The same key with
// the same amount replays the original payout until the key expires.
func (s *Service) RequestPayout(ctx context.Context, shopID uuid.UUID, amount int64, key string) (PayoutResult, error) {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > maxKeyLen {
		return PayoutResult{}, pkgerrors.Newf(pkgerrors.CodeValidation, "idempotency key must be 1..%d characters", maxKeyLen)
	}
	if amount <= 0 {
		return PayoutResult{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	hash := requestHash(shopID, amount)

	var result PayoutResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()

		account, err := repo.PayoutAccount(ctx, shopID, true)
		if err != nil {
			return err
		}
		if account == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "payout account not configured")
		}

		replay, err := s.replay(ctx, repo, shopID, key, hash, now)
		if err != nil || replay != nil {
			if replay != nil {
				result = *replay
			}
			return err
		}
		if err := repo.DropExpiredKey(ctx, shopID, key, now); err != nil {
			return err
		}

		balance, err := s.AvailableBalance(ctx, tx, shopID)
		if err != nil {
			return err
		}
		if amount > balance {
			return pkgerrors.New(pkgerrors.CodeConflict, "amount exceeds available balance").
				WithDetails(map[string]any{"available_balance": balance})
		}

		payout := &models.Payout{ShopID: shopID, Amount: amount, Status: enums.PayoutStatusPending}
		row := &models.PayoutIdempotencyKey{
			ShopID:      shopID,
			Key:         key,
			RequestHash: hash,
			ExpiresAt:   now.Add(s.keyTTL),
		}
		if err := repo.CreatePayout(ctx, payout, row); err != nil {
			return err
		}
		result = PayoutResult{Payout: *payout}
		return nil
	})
	if err != nil && db.IsUniqueViolation(err, keyConstraint) {
		// a concurrent request with the same key won the insert
		result, err = s.replayCommitted(ctx, shopID, key, hash)
	}
	if err != nil {
		s.metrics.IncPayout(outcomeOf(err))
		return PayoutResult{}, err
	}
	if result.Replayed {
		s.metrics.IncPayout("replayed")
	} else {
		s.metrics.IncPayout("requested")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"shop_id":   shopID.String(),
			"payout_id": result.Payout.ID.String(),
			"amount":    amount,
			"replayed":  result.Replayed,
		})
		s.logg.Info(logCtx, "payout requested")
	}
	return result, nil
}

func (s *Service) replay(ctx context.Context, repo *Repository, shopID uuid.UUID, key, hash string, now time.Time) (*PayoutResult, error) {
	existing, err := repo.LiveKey(ctx, shopID, key, now)
	if err != nil || existing == nil {
		return nil, err
	}
	if existing.RequestHash != hash {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request")
	}
	payout, err := repo.FindPayout(ctx, existing.PayoutID)
	if err != nil {
		return nil, err
	}
	return &PayoutResult{Payout: *payout, Replayed: true}, nil
}

func (s *Service) replayCommitted(ctx context.Context, shopID uuid.UUID, key, hash string) (PayoutResult, error) {
	replay, err := s.replay(ctx, s.repo, shopID, key, hash, s.now().UTC())
	if err != nil {
		return PayoutResult{}, err
	}
	if replay == nil {
		return PayoutResult{}, pkgerrors.New(pkgerrors.CodeConflict, "payout request in progress, retry")
	}
	return *replay, nil
}

// MarkPayoutPaid settles a pending payout.
func (s *Service) MarkPayoutPaid(ctx context.Context, id, adminID uuid.UUID, note string) (*models.Payout, error) {
	return s.decide(ctx, id, adminID, enums.PayoutStatusPaid, note, "payout.paid")
}

// RejectPayout releases a pending payout back into the balance.
func (s *Service) RejectPayout(ctx context.Context, id, adminID uuid.UUID, note string) (*models.Payout, error) {
	if strings.TrimSpace(note) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a note is required to reject a payout")
	}
	return s.decide(ctx, id, adminID, enums.PayoutStatusRejected, note, "payout.rejected")
}

func (s *Service) decide(ctx context.Context, id, adminID uuid.UUID, status enums.PayoutStatus, note, action string) (*models.Payout, error) {
	note = strings.TrimSpace(note)
	if len(note) > maxNoteLen {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "note must be at most %d characters", maxNoteLen)
	}
	var notePtr *string
	if note != "" {
		notePtr = &note
	}
	var out *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DecidePayout(ctx, id, status, adminID, notePtr, s.now().UTC()); err != nil {
			return err
		}
		payout, err := repo.FindPayout(ctx, id)
		if err != nil {
			return err
		}
		if s.audit != nil {
			s.audit.Record(ctx, tx, audit.Entry{
				ActorID:    adminID,
				Action:     action,
				EntityType: "payout",
				EntityID:   id.String(),
				Payload:    map[string]any{"shop_id": payout.ShopID.String(), "amount": payout.Amount},
			})
		}
		out = payout
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			// surface NOT_FOUND for unknown ids rather than a state conflict
			if _, findErr := s.repo.FindPayout(ctx, id); findErr != nil {
				return nil, findErr
			}
		}
		return nil, err
	}
	s.metrics.IncPayout(strings.ToLower(string(status)))
	return out, nil
}

// ListPayouts pages payouts. A nil shop lists every shop.
func (s *Service) ListPayouts(ctx context.Context, shopID *uuid.UUID, status *enums.PayoutStatus, params pagination.Params) (pagination.Page[models.Payout], error) {
	if status != nil && !status.IsValid() {
		return pagination.Page[models.Payout]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout status")
	}
	return s.repo.ListPayouts(ctx, shopID, status, params)
}

func requestHash(shopID uuid.UUID, amount int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", shopID, amount)))
	return hex.EncodeToString(sum[:])
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func outcomeOf(err error) string {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeIdempotency):
		return "key_reused"
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		return "insufficient_balance"
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		return "invalid"
	}
	return "failed"
}
