package address

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Input is a destination typed by the buyer.
type Input struct {
	FullName string  `json:"full_name" validate:"required,max=120"`
	Phone    string  `json:"phone" validate:"required,max=32"`
	Line1    string  `json:"line1" validate:"required,max=255"`
	Ward     *string `json:"ward,omitempty" validate:"omitempty,max=120"`
	District *string `json:"district,omitempty" validate:"omitempty,max=120"`
	Province *string `json:"province,omitempty" validate:"omitempty,max=120"`
}

// Snapshot normalizes the input into an order shipping snapshot.
func (in Input) Snapshot() models.ShippingSnapshot {
	return models.ShippingSnapshot{
		FullName: strings.TrimSpace(in.FullName),
		Phone:    strings.TrimSpace(in.Phone),
		Line1:    strings.TrimSpace(in.Line1),
		Ward:     trimmed(in.Ward),
		District: trimmed(in.District),
		Province: trimmed(in.Province),
	}
}

// SnapshotOf copies an address book entry onto an order.
func SnapshotOf(a *models.Address) models.ShippingSnapshot {
	return models.ShippingSnapshot{
		FullName: a.FullName,
		Phone:    a.Phone,
		Line1:    a.Line1,
		Ward:     a.Ward,
		District: a.District,
		Province: a.Province,
	}
}

// Service manages the buyer's address book.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &Service{db: db}, nil
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// FindForUser loads one of the buyer's addresses. Other buyers' addresses are
// reported as missing.
func (s *Service) FindForUser(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*models.Address, error) {
	var addr models.Address
	err := s.conn(tx).WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&addr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}
	return &addr, nil
}

// List returns the buyer's addresses, default first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	var rows []models.Address
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC").
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses")
	}
	return rows, nil
}

// Create adds an address. The first address, or one flagged default,
// becomes the default.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in Input, makeDefault bool) (*models.Address, error) {
	snap := in.Snapshot()
	if snap.FullName == "" || snap.Phone == "" || snap.Line1 == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full name, phone and line1 are required")
	}
	addr := models.Address{
		UserID:   userID,
		FullName: snap.FullName,
		Phone:    snap.Phone,
		Line1:    snap.Line1,
		Ward:     snap.Ward,
		District: snap.District,
		Province: snap.Province,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Address{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		addr.IsDefault = makeDefault || count == 0
		if addr.IsDefault {
			if err := tx.Model(&models.Address{}).Where("user_id = ?", userID).Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(&addr).Error
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create address")
	}
	return &addr, nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
