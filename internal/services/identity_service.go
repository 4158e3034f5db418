package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/vikasavnish/savepad/internal/domain"
	"github.com/vikasavnish/savepad/internal/models"
	"github.com/vikasavnish/savepad/internal/utils"
)

// IdentityService maps loosely typed user references to users
type IdentityService interface {
	// Resolve accepts a numeric id, an email or a phone in any format.
	// Lookup order is id, then email, then normalized phone.
	Resolve(ctx context.Context, ref string) (models.User, error)
	GetByID(ctx context.Context, id uint) (models.User, error)
}

type identityService struct {
	db *gorm.DB
}

// NewIdentityService creates a new identity service
func NewIdentityService(db *gorm.DB) IdentityService {
	return &identityService{
		db: db,
	}
}

func (s *identityService) Resolve(ctx context.Context, ref string) (models.User, error) {
	const op = "identity.resolve"

	if strings.TrimSpace(ref) == "" {
		return models.User{}, domain.Invalid(op, "Identificador de usuário obrigatório.")
	}

	user, err := findUser(s.db.WithContext(ctx), ref)
	if err != nil {
		return models.User{}, domain.Internal(op, err)
	}
	if user == nil {
		return models.User{}, domain.NotFound(op, "Usuário não encontrado.")
	}
	return *user, nil
}

func (s *identityService) GetByID(ctx context.Context, id uint) (models.User, error) {
	const op = "identity.get"

	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, domain.NotFound(op, "Usuário não encontrado.")
	}
	if err != nil {
		return models.User{}, domain.Internal(op, err)
	}
	return user, nil
}

// findUser runs the id → email → phone lookup on tx.
// A miss is (nil, nil).
func findUser(tx *gorm.DB, ref string) (*models.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}

	if id, err := strconv.ParseUint(ref, 10, 64); err == nil && id > 0 {
		user, err := firstUser(tx.Where("id = ?", id))
		if user != nil || err != nil {
			return user, err
		}
	}

	if strings.Contains(ref, "@") {
		user, err := findUserByEmail(tx, ref)
		if user != nil || err != nil {
			return user, err
		}
	}

	return findUserByPhone(tx, ref)
}

func findUserByEmail(tx *gorm.DB, email string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	return firstUser(tx.Where("email = ?", email))
}

func findUserByPhone(tx *gorm.DB, raw string) (*models.User, error) {
	phone := utils.NormalizePhone(raw)
	if phone == "" {
		return nil, nil
	}
	return firstUser(tx.Where("phone = ?", phone))
}

func firstUser(q *gorm.DB) (*models.User, error) {
	var user models.User
	err := q.Order("id").First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
