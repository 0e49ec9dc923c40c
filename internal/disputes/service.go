package disputes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

const (
	minMessageLen = 5
	maxMessageLen = 2000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OpenInput is the buyer's complaint. Type defaults to OTHER.
type OpenInput struct {
	Type    string
	Message string
}

// ResolveInput is the admin decision. ApproveRefund only applies to a
// RESOLVED decision.
type ResolveInput struct {
	Decision      enums.DisputeStatus
	Resolution    string
	ApproveRefund bool
}

// Service runs the dispute workflow.
type Service struct {
	orders *orders.Service
	repo   *Repository
	tx     txRunner
	now    func() time.Time
}

func NewService(orderSvc *orders.Service, repo *Repository, tx txRunner) (*Service, error) {
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if repo == nil {
		return nil, fmt.Errorf("disputes repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{orders: orderSvc, repo: repo, tx: tx, now: time.Now}, nil
}

func validMessage(message string) (string, error) {
	message = strings.TrimSpace(message)
	if len(message) < minMessageLen || len(message) > maxMessageLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "message must be between 5 and 2000 characters")
	}
	return message, nil
}

// Open raises a dispute and parks the order in DISPUTED.
func (s *Service) Open(ctx context.Context, code string, actor orders.Actor, input OpenInput) (orders.Result, error) {
	message, err := validMessage(input.Message)
	if err != nil {
		return orders.Result{}, err
	}
	kind := enums.DisputeTypeOther
	if t := strings.TrimSpace(input.Type); t != "" {
		parsed, err := enums.ParseDisputeType(strings.ToUpper(t))
		if err != nil {
			return orders.Result{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid dispute type")
		}
		kind = parsed
	}

	var result orders.Result
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.Load(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		existing, err := s.orders.Repo().WithTx(tx).DisputeFor(ctx, order.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "dispute already exists")
		}
		previous := order.Status
		if _, err := s.orders.Apply(ctx, tx, order, orders.Command{Action: orders.ActionDisputeOpen, Actor: actor}); err != nil {
			return err
		}
		dispute := models.Dispute{
			OrderID:        order.ID,
			UserID:         actor.UserID,
			Type:           kind,
			Message:        message,
			Status:         enums.DisputeStatusOpen,
			PreviousStatus: previous,
		}
		if err := tx.WithContext(ctx).Create(&dispute).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dispute")
		}
		body := fmt.Sprintf("A dispute was opened on order %s.", order.Code)
		s.orders.NotifySeller(ctx, tx, order, enums.NotificationDisputeUpdate, "Dispute opened", body)
		s.orders.NotifyAdmins(ctx, tx, order, enums.NotificationDisputeUpdate, "Dispute opened", body)
		result = orders.Result{Code: order.Code, Status: order.Status}
		return nil
	})
	return result, err
}

// Respond stores the seller's side and moves the dispute under review.
func (s *Service) Respond(ctx context.Context, code string, actor orders.Actor, response string) (View, error) {
	response, err := validMessage(response)
	if err != nil {
		return View{}, err
	}
	if actor.Role != enums.RoleSeller && !actor.Role.IsStaff() {
		return View{}, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can respond to a dispute")
	}
	var view View
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.Load(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		dispute, err := s.disputeOf(ctx, tx, order)
		if err != nil {
			return err
		}
		if err := s.repo.Advance(ctx, tx, dispute, []enums.DisputeStatus{enums.DisputeStatusOpen}, map[string]any{
			"status":          enums.DisputeStatusUnderReview,
			"seller_response": response,
		}); err != nil {
			return err
		}
		s.orders.NotifyAdmins(ctx, tx, order, enums.NotificationDisputeUpdate, "Seller responded",
			fmt.Sprintf("The seller responded to the dispute on order %s.", order.Code))
		view = viewOf(dispute, order)
		return nil
	})
	return view, err
}

// Review marks an open dispute as taken by staff.
func (s *Service) Review(ctx context.Context, id uuid.UUID, actor orders.Actor) (View, error) {
	if !actor.Role.IsStaff() {
		return View{}, pkgerrors.New(pkgerrors.CodeForbidden, "dispute review requires staff")
	}
	var view View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		dispute, order, err := s.byID(ctx, tx, id, actor)
		if err != nil {
			return err
		}
		if err := s.repo.Advance(ctx, tx, dispute, []enums.DisputeStatus{enums.DisputeStatusOpen}, map[string]any{
			"status": enums.DisputeStatusUnderReview,
		}); err != nil {
			return err
		}
		s.orders.NotifyBuyer(ctx, tx, order, enums.NotificationDisputeUpdate, "Dispute under review",
			fmt.Sprintf("Your dispute on order %s is being reviewed.", order.Code))
		view = viewOf(dispute, order)
		return nil
	})
	return view, err
}

// Resolve records the admin decision. Approving a refund opens an APPROVED
// refund and moves the order to REFUND_REQUESTED; any other decision returns
// the order to the status it had before the dispute.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, actor orders.Actor, input ResolveInput) (View, error) {
	if !actor.Role.IsStaff() {
		return View{}, pkgerrors.New(pkgerrors.CodeForbidden, "dispute resolution requires staff")
	}
	if input.Decision != enums.DisputeStatusResolved && input.Decision != enums.DisputeStatusRejected {
		return View{}, pkgerrors.New(pkgerrors.CodeValidation, "decision must be RESOLVED or REJECTED")
	}
	if input.ApproveRefund && input.Decision != enums.DisputeStatusResolved {
		return View{}, pkgerrors.New(pkgerrors.CodeValidation, "a refund can only be approved on a resolved dispute")
	}
	resolution, err := validMessage(input.Resolution)
	if err != nil {
		return View{}, err
	}
	var view View
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		dispute, order, err := s.byID(ctx, tx, id, actor)
		if err != nil {
			return err
		}
		if dispute.Status.IsFinal() {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "dispute is %s", dispute.Status)
		}
		if input.ApproveRefund {
			if err := s.approveRefund(ctx, tx, order, actor, resolution); err != nil {
				return err
			}
			if _, err := s.orders.Apply(ctx, tx, order, orders.Command{Action: orders.ActionDisputeRefund, Actor: actor}); err != nil {
				return err
			}
		} else if order.Status == enums.OrderStatusDisputed {
			if _, err := s.orders.Apply(ctx, tx, order, orders.Command{
				Action:   orders.ActionDisputeClose,
				Actor:    actor,
				RevertTo: dispute.PreviousStatus,
			}); err != nil {
				return err
			}
		}
		now := s.now().UTC()
		if err := s.repo.Advance(ctx, tx, dispute, []enums.DisputeStatus{enums.DisputeStatusOpen, enums.DisputeStatusUnderReview}, map[string]any{
			"status":      input.Decision,
			"resolution":  resolution,
			"resolved_by": actor.UserID,
			"resolved_at": now,
		}); err != nil {
			return err
		}
		dispute.Resolution = &resolution
		s.orders.Record(ctx, tx, actor, "dispute.resolve", order, map[string]any{
			"dispute_id":     dispute.ID,
			"decision":       input.Decision,
			"approve_refund": input.ApproveRefund,
		})
		s.orders.NotifyBuyer(ctx, tx, order, enums.NotificationDisputeUpdate, "Dispute "+strings.ToLower(string(input.Decision)),
			fmt.Sprintf("Your dispute on order %s was %s: %s", order.Code, strings.ToLower(string(input.Decision)), resolution))
		s.orders.NotifySeller(ctx, tx, order, enums.NotificationDisputeUpdate, "Dispute "+strings.ToLower(string(input.Decision)),
			fmt.Sprintf("The dispute on order %s was %s.", order.Code, strings.ToLower(string(input.Decision))))
		view = viewOf(dispute, order)
		return nil
	})
	return view, err
}

// RequestRevision lets the buyer ask once for a decided dispute to be looked
// at again. Nothing but the edit counter changes.
func (s *Service) RequestRevision(ctx context.Context, code string, actor orders.Actor, message string) (View, error) {
	message, err := validMessage(message)
	if err != nil {
		return View{}, err
	}
	var view View
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.Load(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		if actor.Role != enums.RoleCustomer {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can request a revision")
		}
		dispute, err := s.disputeOf(ctx, tx, order)
		if err != nil {
			return err
		}
		if !dispute.Status.IsFinal() {
			return pkgerrors.New(pkgerrors.CodeConflict, "dispute has not been decided yet")
		}
		if err := s.repo.ClaimRevision(ctx, tx, dispute); err != nil {
			return err
		}
		s.orders.NotifyAdmins(ctx, tx, order, enums.NotificationDisputeRevision, "Dispute revision requested",
			fmt.Sprintf("The buyer asked to revisit the dispute on order %s: %s", order.Code, message))
		view = viewOf(dispute, order)
		return nil
	})
	return view, err
}

func (s *Service) approveRefund(ctx context.Context, tx *gorm.DB, order *models.Order, actor orders.Actor, note string) error {
	existing, err := s.orders.Repo().WithTx(tx).RefundFor(ctx, order.ID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if existing == nil {
		reason := "dispute resolved in buyer's favour"
		record := models.Refund{
			OrderID:      order.ID,
			Amount:       order.Total,
			Reason:       &reason,
			Status:       enums.RefundStatusApproved,
			DecisionNote: &note,
			ProcessedBy:  &actor.UserID,
			ProcessedAt:  &now,
		}
		if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
		}
		return nil
	}
	if existing.Status == enums.RefundStatusSuccess || existing.Status == enums.RefundStatusProcessing {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "refund is %s", strings.ToLower(string(existing.Status)))
	}
	err = tx.WithContext(ctx).Model(&models.Refund{}).Where("id = ?", existing.ID).Updates(map[string]any{
		"status":        enums.RefundStatusApproved,
		"amount":        order.Total,
		"fail_reason":   nil,
		"decision_note": note,
		"processed_by":  actor.UserID,
		"processed_at":  now,
	}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve refund")
	}
	return nil
}

func (s *Service) disputeOf(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Dispute, error) {
	dispute, err := s.orders.Repo().WithTx(tx).DisputeFor(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if dispute == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
	}
	return dispute, nil
}

func (s *Service) byID(ctx context.Context, tx *gorm.DB, id uuid.UUID, actor orders.Actor) (*models.Dispute, *models.Order, error) {
	dispute, err := s.repo.WithTx(tx).FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	order, err := s.orders.LoadByID(ctx, tx, dispute.OrderID, actor)
	if err != nil {
		return nil, nil, err
	}
	return dispute, order, nil
}
