package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/vikasavnish/savepad/internal/billing"
	"github.com/vikasavnish/savepad/internal/domain"
	"github.com/vikasavnish/savepad/internal/models"
	"github.com/vikasavnish/savepad/internal/telemetry"
)

// MessageTypePlanStatus tags plan transitions on the websocket hub.
const MessageTypePlanStatus = "plan_status"

// Broadcaster publishes messages to connected realtime clients.
type Broadcaster interface {
	Broadcast(msg models.Message)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(models.Message) {}

// PlanService defines the interface for subscription plan operations
type PlanService interface {
	// Create inserts a pending plan priced from the catalog.
	Create(ctx context.Context, userID uint, planType, cadence string) (models.Plan, Quote, error)
	// Latest returns the most recent plan of the user, nil when there is none.
	Latest(ctx context.Context, userID uint) (*models.Plan, error)
	AttachCheckout(ctx context.Context, planID uint, preferenceID, preapprovalID string) error
	// Transition sets status on the most recent pending plan of the user.
	Transition(ctx context.Context, userID uint, status string) (models.Plan, bool, error)
	TransitionPlan(ctx context.Context, planID uint, status string) (models.Plan, bool, error)
	// SettlePayment applies a payment status to planID unless the plan is
	// already settled, in which case it is returned untouched.
	SettlePayment(ctx context.Context, planID uint, status string) (models.Plan, bool, error)
	FindByPreapproval(ctx context.Context, preapprovalID string) (*models.Plan, error)
	// Cancel stops the active plan and revokes every family membership of the owner.
	Cancel(ctx context.Context, userRef string) (models.Plan, error)
	Status(ctx context.Context, userRef string) (models.StatusResponse, error)
	ListActive(ctx context.Context) ([]models.Plan, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type planService struct {
	db          *gorm.DB
	provider    billing.Provider
	broadcaster Broadcaster
}

// NewPlanService creates a new plan service
func NewPlanService(db *gorm.DB, provider billing.Provider, broadcaster Broadcaster) PlanService {
	if provider == nil {
		provider = billing.Unconfigured{}
	}
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	return &planService{
		db:          db,
		provider:    provider,
		broadcaster: broadcaster,
	}
}

func (s *planService) Create(ctx context.Context, userID uint, planType, cadence string) (models.Plan, Quote, error) {
	const op = "plan.create"

	quote, err := QuotePlan(planType, cadence)
	if err != nil {
		return models.Plan{}, Quote{}, domain.WrapError(err, domain.EINVALID, op, "Plano ou recorrência inválidos.")
	}

	plan := models.Plan{
		UserID:    userID,
		Type:      quote.Type,
		Mode:      quote.Mode,
		Status:    models.PlanStatusPending,
		Amount:    quote.Amount,
		Cadence:   cadence,
		ExpiresAt: quote.ExpiresAt(time.Now()),
	}
	if err := s.db.WithContext(ctx).Create(&plan).Error; err != nil {
		return models.Plan{}, Quote{}, domain.Internal(op, err)
	}
	return plan, quote, nil
}

func (s *planService) Latest(ctx context.Context, userID uint) (*models.Plan, error) {
	plan, err := firstPlan(s.db.WithContext(ctx).Where("user_id = ?", userID))
	if err != nil {
		return nil, domain.Internal("plan.latest", err)
	}
	return plan, nil
}

func (s *planService) AttachCheckout(ctx context.Context, planID uint, preferenceID, preapprovalID string) error {
	err := s.db.WithContext(ctx).Model(&models.Plan{}).Where("id = ?", planID).Updates(map[string]interface{}{
		"preference_id":  preferenceID,
		"preapproval_id": preapprovalID,
	}).Error
	if err != nil {
		return domain.Internal("plan.attach_checkout", err)
	}
	return nil
}

func (s *planService) Transition(ctx context.Context, userID uint, status string) (models.Plan, bool, error) {
	const op = "plan.transition"

	var plan models.Plan
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending, err := firstPlan(tx.Where("user_id = ? AND status = ?", userID, models.PlanStatusPending))
		if err != nil {
			return err
		}
		if pending == nil {
			// redelivery after the plan already moved on
			latest, err := firstPlan(tx.Where("user_id = ?", userID))
			if err != nil {
				return err
			}
			if latest != nil && latest.Status == status {
				plan = *latest
				return nil
			}
			return domain.NotFound(op, "Nenhum plano pendente encontrado.")
		}

		plan = *pending
		changed, err = applyTransition(tx, &plan, status)
		return err
	})
	if err != nil {
		return models.Plan{}, false, wrapStoreError(err, op)
	}

	if changed {
		s.publish(ctx, plan)
	}
	return plan, changed, nil
}

func (s *planService) TransitionPlan(ctx context.Context, planID uint, status string) (models.Plan, bool, error) {
	const op = "plan.transition"

	var plan models.Plan
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := firstPlan(tx.Where("id = ?", planID))
		if err != nil {
			return err
		}
		if found == nil {
			return domain.NotFound(op, "Plano não encontrado.")
		}
		plan = *found
		changed, err = applyTransition(tx, &plan, status)
		return err
	})
	if err != nil {
		return models.Plan{}, false, wrapStoreError(err, op)
	}

	if changed {
		s.publish(ctx, plan)
	}
	return plan, changed, nil
}

func (s *planService) SettlePayment(ctx context.Context, planID uint, status string) (models.Plan, bool, error) {
	const op = "plan.settle_payment"

	var plan models.Plan
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := firstPlan(tx.Where("id = ?", planID))
		if err != nil {
			return err
		}
		if found == nil {
			return domain.NotFound(op, "Plano não encontrado.")
		}
		plan = *found
		if plan.IsSettled() {
			return nil
		}
		changed, err = applyTransition(tx, &plan, status)
		return err
	})
	if err != nil {
		return models.Plan{}, false, wrapStoreError(err, op)
	}

	if changed {
		s.publish(ctx, plan)
	}
	return plan, changed, nil
}

func (s *planService) FindByPreapproval(ctx context.Context, preapprovalID string) (*models.Plan, error) {
	if preapprovalID == "" {
		return nil, nil
	}
	plan, err := firstPlan(s.db.WithContext(ctx).Where("preapproval_id = ?", preapprovalID))
	if err != nil {
		return nil, domain.Internal("plan.find_preapproval", err)
	}
	return plan, nil
}

func (s *planService) Cancel(ctx context.Context, userRef string) (models.Plan, error) {
	const op = "plan.cancel"
	db := s.db.WithContext(ctx)

	user, err := findUser(db, userRef)
	if err != nil {
		return models.Plan{}, domain.Internal(op, err)
	}
	if user == nil {
		return models.Plan{}, domain.NotFound(op, "Usuário não encontrado.")
	}

	active, err := firstPlan(db.Where("user_id = ? AND status = ?", user.ID, models.PlanStatusApproved))
	if err != nil {
		return models.Plan{}, domain.Internal(op, err)
	}
	if active == nil {
		return models.Plan{}, domain.NotFound(op, "Nenhum plano ativo encontrado.")
	}

	if active.PreapprovalID != "" {
		err := s.provider.CancelSubscription(ctx, active.PreapprovalID)
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			log.Ctx(ctx).Warn().Str("preapproval_id", active.PreapprovalID).Msg("subscription unknown to provider, cancelling locally")
		} else if err != nil {
			return models.Plan{}, domain.Upstream(op, err)
		}
	}

	plan := *active
	var revoked int64
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := applyTransition(tx, &plan, models.PlanStatusCancelled); err != nil {
			return err
		}
		res := tx.Where("owner_id = ?", user.ID).Delete(&models.FamilyMember{})
		revoked = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return models.Plan{}, domain.Internal(op, err)
	}

	log.Ctx(ctx).Info().
		Uint("user_id", user.ID).
		Uint("plan_id", plan.ID).
		Int64("memberships_revoked", revoked).
		Msg("plan cancelled")

	s.publish(ctx, plan)
	return plan, nil
}

func (s *planService) Status(ctx context.Context, userRef string) (models.StatusResponse, error) {
	const op = "plan.status"
	db := s.db.WithContext(ctx)

	user, err := findUser(db, userRef)
	if err != nil {
		return models.StatusResponse{}, domain.Internal(op, err)
	}
	if user == nil {
		return models.StatusResponse{}, domain.NotFound(op, "Usuário não encontrado.")
	}

	ownerID, err := ownerOf(db, user.ID)
	if err != nil {
		return models.StatusResponse{}, domain.Internal(op, err)
	}

	resp := models.StatusResponse{
		Status:  models.StatusLabel(""),
		OwnerID: ownerID,
		UserID:  user.ID,
	}

	plan, err := firstPlan(db.Where("user_id = ?", ownerID))
	if err != nil {
		return models.StatusResponse{}, domain.Internal(op, err)
	}
	if plan == nil {
		return resp, nil
	}

	status := plan.Status
	now := time.Now()
	if status == models.PlanStatusApproved && plan.ExpiresAt != nil && plan.ExpiresAt.Before(now) {
		// the sweeper has not caught up yet
		status = models.PlanStatusExpired
	}

	resp.Status = models.StatusLabel(status)
	resp.RawStatus = plan.Status
	resp.Type = plan.Type
	resp.Mode = plan.Mode
	resp.ExpiresAt = plan.ExpiresAt
	if plan.ExpiresAt != nil {
		days := int(math.Floor(plan.ExpiresAt.Sub(now).Hours() / 24))
		resp.DaysRemaining = &days
	}
	return resp, nil
}

func (s *planService) ListActive(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	err := s.db.WithContext(ctx).
		Where("status = ?", models.PlanStatusApproved).
		Order("id DESC").
		Find(&plans).Error
	if err != nil {
		return nil, domain.Internal("plan.list_active", err)
	}
	return plans, nil
}

func (s *planService) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Plan{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.PlanStatusApproved, now).
		Update("status", models.PlanStatusExpired)
	if res.Error != nil {
		return 0, domain.Internal("plan.expire_due", res.Error)
	}
	telemetry.Business.ObserveExpired(res.RowsAffected)
	return res.RowsAffected, nil
}

func (s *planService) publish(ctx context.Context, plan models.Plan) {
	telemetry.Business.ObserveTransition(plan.Status)
	log.Ctx(ctx).Info().
		Uint("plan_id", plan.ID).
		Uint("user_id", plan.UserID).
		Str("status", plan.Status).
		Msg("plan status changed")

	s.broadcaster.Broadcast(models.Message{
		Type: MessageTypePlanStatus,
		Content: models.PlanStatusEvent{
			PlanID: plan.ID,
			UserID: plan.UserID,
			Type:   plan.Type,
			Status: plan.Status,
			Label:  models.StatusLabel(plan.Status),
		},
	})
}

// applyTransition sets status on plan. Setting the current status again is
// a no-op and reports false. Approving a one-off plan restarts its validity.
func applyTransition(tx *gorm.DB, plan *models.Plan, status string) (bool, error) {
	if plan.Status == status {
		return false, nil
	}

	updates := map[string]interface{}{"status": status}
	if status == models.PlanStatusApproved && !plan.IsRecurring() {
		if offer, ok := LookupOffer(plan.Type); ok {
			expires := time.Now().AddDate(0, 0, offer.Days)
			updates["expires_at"] = expires
			plan.ExpiresAt = &expires
		}
	}

	if err := tx.Model(&models.Plan{}).Where("id = ?", plan.ID).Updates(updates).Error; err != nil {
		return false, err
	}
	plan.Status = status
	return true, nil
}

func firstPlan(q *gorm.DB) (*models.Plan, error) {
	var plan models.Plan
	err := q.Order("id DESC").First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}
