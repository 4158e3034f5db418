package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/vikasavnish/savepad/internal/domain"
	"github.com/vikasavnish/savepad/internal/models"
	"github.com/vikasavnish/savepad/internal/notify"
	"github.com/vikasavnish/savepad/internal/utils"
)

// FamilyService defines the interface for family plan sharing
type FamilyService interface {
	// Resolve returns the billing owner of the user and the owner's members.
	Resolve(ctx context.Context, userRef string) (models.Family, error)
	AddMember(ctx context.Context, req models.AddMemberRequest) (models.MemberView, error)
	RemoveMember(ctx context.Context, req models.RemoveMemberRequest) error
	Leave(ctx context.Context, memberRef string) error
	// ConfirmContact verifies the user's phone and binds pending invites to it.
	ConfirmContact(ctx context.Context, userRef, phone string) (models.ConfirmResult, error)
}

type familyService struct {
	db       *gorm.DB
	notifier notify.Notifier
}

// NewFamilyService creates a new family service
func NewFamilyService(db *gorm.DB, notifier notify.Notifier) FamilyService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &familyService{
		db:       db,
		notifier: notifier,
	}
}

func (s *familyService) Resolve(ctx context.Context, userRef string) (models.Family, error) {
	const op = "family.resolve"
	db := s.db.WithContext(ctx)

	user, err := findUser(db, userRef)
	if err != nil {
		return models.Family{}, domain.Internal(op, err)
	}
	if user == nil {
		return models.Family{}, domain.NotFound(op, "Usuário não encontrado.")
	}

	ownerID, err := ownerOf(db, user.ID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Uint("user_id", user.ID).Msg("owner lookup failed, using self")
		ownerID = user.ID
	}

	family := models.Family{OwnerID: ownerID, Members: []models.MemberView{}}

	if owner, err := firstUser(db.Where("id = ?", ownerID)); err == nil && owner != nil {
		p := owner.Profile()
		family.Owner = &p
	}

	var rows []models.FamilyMember
	if err := db.Preload("Member").Where("owner_id = ?", ownerID).Order("id").Find(&rows).Error; err != nil {
		log.Ctx(ctx).Warn().Err(err).Uint("owner_id", ownerID).Msg("member listing failed")
		return family, nil
	}

	for _, row := range rows {
		family.Members = append(family.Members, memberView(row))
	}
	family.Total = len(family.Members)
	return family, nil
}

func (s *familyService) AddMember(ctx context.Context, req models.AddMemberRequest) (models.MemberView, error) {
	const op = "family.add"

	if req.Name == "" {
		return models.MemberView{}, domain.Invalid(op, "Informe o nome do novo membro.")
	}
	if req.Phone == "" && req.MemberEmail == "" {
		return models.MemberView{}, domain.Invalid(op, "Você precisa informar o nome e o número de WhatsApp do novo membro.")
	}

	var phone string
	if req.Phone != "" {
		p, err := utils.ValidatePhone(req.Phone)
		if err != nil {
			return models.MemberView{}, domain.Invalid(op, "Número de WhatsApp inválido.")
		}
		phone = p
	}
	email := normalizeEmail(req.MemberEmail)

	var owner *models.User
	var row models.FamilyMember

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		owner, err = findUser(tx, string(req.OwnerID))
		if err != nil {
			return err
		}
		if owner == nil {
			return domain.NotFound(op, "Dono não encontrado.")
		}

		member, err := inviteeFor(tx, req.Name, phone, email)
		if err != nil {
			return err
		}
		if member.ID == owner.ID {
			return domain.Invalid(op, "O dono não pode se adicionar à própria família.")
		}

		var count int64
		if err := tx.Model(&models.FamilyMember{}).
			Where("owner_id = ? AND member_id = ?", owner.ID, member.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.Conflict(op, "Este membro já faz parte da sua família.")
		}

		if phone == "" {
			phone = member.PhoneValue()
		}
		memberID := member.ID
		row = models.FamilyMember{
			OwnerID:        owner.ID,
			MemberID:       &memberID,
			Name:           req.Name,
			WhatsappNumber: phone,
			Email:          email,
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.Conflict(op, "Este membro já faz parte da sua família.")
			}
			return err
		}
		row.Member = member
		return nil
	})
	if err != nil {
		return models.MemberView{}, wrapStoreError(err, op)
	}

	log.Ctx(ctx).Info().
		Uint("owner_id", owner.ID).
		Uint("relation_id", row.ID).
		Str("phone", row.WhatsappNumber).
		Msg("family member invited")

	if row.WhatsappNumber != "" {
		s.notify(ctx, notify.FamilyMessage{
			Phone:     row.WhatsappNumber,
			Name:      row.Name,
			OwnerName: owner.Name,
			Action:    notify.ActionInvited,
		})
	}

	return memberView(row), nil
}

func (s *familyService) RemoveMember(ctx context.Context, req models.RemoveMemberRequest) error {
	const op = "family.remove"

	if req.RelationID == 0 && req.MemberID == "" {
		return domain.Invalid(op, "Campos obrigatórios ausentes.")
	}

	var owner *models.User
	var snapshot models.MemberView

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		owner, err = findUser(tx, string(req.OwnerID))
		if err != nil {
			return err
		}
		if owner == nil {
			return domain.NotFound(op, "Dono não encontrado.")
		}

		row, err := s.findRelation(tx, owner.ID, req)
		if err != nil {
			return err
		}
		if row == nil {
			return domain.NotFound(op, "Membro não encontrado.")
		}

		// capture before the delete so the notification still has a name and phone
		snapshot = memberView(*row)

		return tx.Delete(&models.FamilyMember{}, row.ID).Error
	})
	if err != nil {
		return wrapStoreError(err, op)
	}

	log.Ctx(ctx).Info().
		Uint("owner_id", owner.ID).
		Uint("relation_id", snapshot.RelationID).
		Msg("family member removed")

	if snapshot.Phone != "" {
		s.notify(ctx, notify.FamilyMessage{
			Phone:     snapshot.Phone,
			Name:      snapshot.Name,
			OwnerName: owner.Name,
			Action:    notify.ActionRemoved,
		})
	}
	return nil
}

// findRelation prefers the relation id. A member reference falls back to the
// most recent relation for that member, then to a pending invite on the
// same contact.
func (s *familyService) findRelation(tx *gorm.DB, ownerID uint, req models.RemoveMemberRequest) (*models.FamilyMember, error) {
	owned := func() *gorm.DB {
		return tx.Preload("Member").Where("owner_id = ?", ownerID)
	}

	if req.RelationID != 0 {
		return firstRelation(owned().Where("id = ?", req.RelationID))
	}

	member, err := findUser(tx, string(req.MemberID))
	if err != nil {
		return nil, err
	}
	if member != nil {
		row, err := firstRelation(owned().Where("member_id = ?", member.ID).Order("id DESC"))
		if row != nil || err != nil {
			return row, err
		}
	}

	pending := owned().Where("member_id IS NULL").Order("id DESC")
	if email := normalizeEmail(string(req.MemberID)); strings.Contains(email, "@") {
		return firstRelation(pending.Where("email = ?", email))
	}
	if phone := utils.NormalizePhone(string(req.MemberID)); phone != "" {
		return firstRelation(pending.Where("whatsapp_number = ?", phone))
	}
	return nil, nil
}

func (s *familyService) Leave(ctx context.Context, memberRef string) error {
	const op = "family.leave"

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := findUser(tx, memberRef)
		if err != nil {
			return err
		}
		if member == nil {
			return domain.NotFound(op, "Usuário não encontrado.")
		}

		res := tx.Where("member_id = ?", member.ID).Delete(&models.FamilyMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.NotFound(op, "Você não faz parte de nenhuma família.")
		}
		return nil
	})
	return wrapStoreError(err, op)
}

func (s *familyService) ConfirmContact(ctx context.Context, userRef, rawPhone string) (models.ConfirmResult, error) {
	const op = "family.confirm_contact"

	phone, err := utils.ValidatePhone(rawPhone)
	if err != nil {
		return models.ConfirmResult{}, domain.Invalid(op, "Número de WhatsApp inválido.")
	}

	var result models.ConfirmResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := findUser(tx, userRef)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.NotFound(op, "Usuário não encontrado.")
		}
		result, err = confirmContact(tx, user, phone)
		return err
	})
	if err != nil {
		return models.ConfirmResult{}, wrapStoreError(err, op)
	}

	log.Ctx(ctx).Info().
		Uint("user_id", result.UserID).
		Str("phone", result.Phone).
		Bool("linked", result.Linked).
		Msg("contact confirmed")
	return result, nil
}

func (s *familyService) notify(ctx context.Context, msg notify.FamilyMessage) {
	if err := s.notifier.NotifyFamily(ctx, msg); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("action", msg.Action).Msg("family notification failed")
	}
}

// confirmContact verifies phone for user inside tx. An invited placeholder
// holding the same phone is merged into user; any other holder is a conflict.
func confirmContact(tx *gorm.DB, user *models.User, phone string) (models.ConfirmResult, error) {
	const op = "family.confirm_contact"
	linked := 0

	holder, err := firstUser(tx.Where("phone = ? AND id <> ?", phone, user.ID))
	if err != nil {
		return models.ConfirmResult{}, err
	}
	if holder != nil {
		if holder.Status != models.UserStatusInvited {
			return models.ConfirmResult{}, domain.Conflict(op, "Este número já está vinculado a outra conta.")
		}
		n, err := mergePlaceholder(tx, holder.ID, user.ID)
		if err != nil {
			return models.ConfirmResult{}, err
		}
		linked += n
	}

	now := time.Now()
	if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"phone":             phone,
		"status":            models.UserStatusActive,
		"verified_at":       now,
		"verification_code": "",
		"code_expires_at":   nil,
	}).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ConfirmResult{}, domain.Conflict(op, "Este número já está vinculado a outra conta.")
		}
		return models.ConfirmResult{}, err
	}

	var pending []models.FamilyMember
	q := tx.Where("member_id IS NULL AND whatsapp_number = ?", phone)
	if email := user.EmailValue(); email != "" {
		q = tx.Where("member_id IS NULL AND (whatsapp_number = ? OR email = ?)", phone, email)
	}
	if err := q.Find(&pending).Error; err != nil {
		return models.ConfirmResult{}, err
	}
	for _, row := range pending {
		n, err := rebindRelation(tx, row, user.ID)
		if err != nil {
			return models.ConfirmResult{}, err
		}
		linked += n
	}

	return models.ConfirmResult{UserID: user.ID, Phone: phone, Linked: linked > 0}, nil
}

// mergePlaceholder moves every membership of the placeholder to userID and
// releases its phone.
func mergePlaceholder(tx *gorm.DB, placeholderID, userID uint) (int, error) {
	var rows []models.FamilyMember
	if err := tx.Where("member_id = ?", placeholderID).Find(&rows).Error; err != nil {
		return 0, err
	}

	linked := 0
	for _, row := range rows {
		n, err := rebindRelation(tx, row, userID)
		if err != nil {
			return 0, err
		}
		linked += n
	}

	err := tx.Model(&models.User{}).Where("id = ?", placeholderID).Updates(map[string]interface{}{
		"phone":  nil,
		"status": models.UserStatusMerged,
	}).Error
	return linked, err
}

// rebindRelation points row at userID. When the owner already has userID as
// a member the row is a duplicate and is dropped instead.
func rebindRelation(tx *gorm.DB, row models.FamilyMember, userID uint) (int, error) {
	if row.OwnerID == userID {
		return 0, tx.Delete(&models.FamilyMember{}, row.ID).Error
	}

	var count int64
	if err := tx.Model(&models.FamilyMember{}).
		Where("owner_id = ? AND member_id = ? AND id <> ?", row.OwnerID, userID, row.ID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, tx.Delete(&models.FamilyMember{}, row.ID).Error
	}

	if err := tx.Model(&models.FamilyMember{}).Where("id = ?", row.ID).Update("member_id", userID).Error; err != nil {
		return 0, err
	}
	return 1, nil
}

// inviteeFor finds the user behind an invite or creates a placeholder:
// "invited" for a phone invite, a bare "pending" profile for an email invite.
func inviteeFor(tx *gorm.DB, name, phone, email string) (*models.User, error) {
	if phone != "" {
		user, err := firstUser(tx.Where("phone = ?", phone))
		if user != nil || err != nil {
			return user, err
		}
	}
	if email != "" {
		user, err := firstUser(tx.Where("email = ?", email))
		if user != nil || err != nil {
			return user, err
		}
	}

	user := &models.User{Name: name, Status: models.UserStatusPending}
	if phone != "" {
		user.Phone = &phone
		user.Status = models.UserStatusInvited
	}
	if email != "" {
		user.Email = &email
	}
	if err := tx.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// ownerOf returns the billing owner for userID: self when the user holds a
// live familiar plan, else the owner of the family the user belongs to,
// else self.
func ownerOf(tx *gorm.DB, userID uint) (uint, error) {
	var plans int64
	if err := tx.Model(&models.Plan{}).
		Where("user_id = ? AND mode = ? AND status NOT IN ?", userID, models.ModeFamiliar,
			[]string{models.PlanStatusCancelled, models.PlanStatusExpired}).
		Count(&plans).Error; err != nil {
		return userID, err
	}
	if plans > 0 {
		return userID, nil
	}

	row, err := firstRelation(tx.Where("member_id = ?", userID).Order("id DESC"))
	if err != nil {
		return userID, err
	}
	if row != nil {
		return row.OwnerID, nil
	}
	return userID, nil
}

func firstRelation(q *gorm.DB) (*models.FamilyMember, error) {
	var row models.FamilyMember
	err := q.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// memberView renders a membership. The invite-time name wins over the
// linked profile; a verified phone on the linked account wins over the
// invite-time phone.
func memberView(row models.FamilyMember) models.MemberView {
	view := models.MemberView{
		RelationID: row.ID,
		MemberID:   row.MemberID,
		Name:       row.Name,
		Phone:      row.WhatsappNumber,
		Email:      row.Email,
	}

	if m := row.Member; m != nil {
		if view.Name == "" {
			view.Name = m.Name
		}
		if m.VerifiedAt != nil && m.PhoneValue() != "" {
			view.Phone = m.PhoneValue()
		}
		if view.Email == "" {
			view.Email = m.EmailValue()
		}
		view.IsLinked = m.Status == models.UserStatusActive
	}
	return view
}

// wrapStoreError passes domain errors through and hides everything else
// behind an internal error.
func wrapStoreError(err error, op string) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Internal(op, err)
}
