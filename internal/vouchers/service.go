package vouchers

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Service loads vouchers by code and redeems them.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// FindByCode returns nil without error when the code does not exist.
func (s *Service) FindByCode(ctx context.Context, tx *gorm.DB, code string) (*models.Voucher, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}
	var voucher models.Voucher
	err := s.conn(tx).WithContext(ctx).Where("code = ?", code).First(&voucher).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}
	return &voucher, nil
}

// Quote resolves the code against the context without redeeming it.
func (s *Service) Quote(ctx context.Context, tx *gorm.DB, code string, c Context) (Verdict, *models.Voucher, error) {
	voucher, err := s.FindByCode(ctx, tx, code)
	if err != nil {
		return Verdict{}, nil, err
	}
	verdict := Resolve(voucher, c)
	if !verdict.Applied {
		return verdict, nil, nil
	}
	return verdict, voucher, nil
}

// Redeem consumes one use of the voucher. The guarded increment fails with a
// conflict when a concurrent checkout took the last use.
func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, voucherID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	res := tx.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND (usage_limit IS NULL OR used_count < usage_limit)", voucherID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "redeem voucher")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "voucher usage limit reached")
	}
	return nil
}
