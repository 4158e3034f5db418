package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/vikasavnish/savepad/internal/domain"
	"github.com/vikasavnish/savepad/internal/models"
	"github.com/vikasavnish/savepad/internal/utils"
)

// UserService defines the interface for user-related operations
type UserService interface {
	GetUsers(ctx context.Context) ([]models.Profile, error)
	Lookup(ctx context.Context, ref string) (models.Profile, error)
	// QuickRegister creates a phone-only user, returning the existing one when
	// the phone is already known.
	QuickRegister(ctx context.Context, name, phone string) (models.Profile, bool, error)
}

// userService implements the UserService interface
type userService struct {
	db *gorm.DB
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB) UserService {
	return &userService{
		db: db,
	}
}

// GetUsers returns all users, newest first
func (s *userService) GetUsers(ctx context.Context) ([]models.Profile, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).
		Where("status <> ?", models.UserStatusMerged).
		Order("id DESC").
		Find(&users).Error; err != nil {
		return nil, domain.Internal("user.list", err)
	}

	profiles := make([]models.Profile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Profile())
	}
	return profiles, nil
}

// Lookup resolves an id, email or phone to a profile
func (s *userService) Lookup(ctx context.Context, ref string) (models.Profile, error) {
	user, err := findUser(s.db.WithContext(ctx), ref)
	if err != nil {
		return models.Profile{}, domain.Internal("user.lookup", err)
	}
	if user == nil {
		return models.Profile{}, domain.NotFound("user.lookup", "Usuário não encontrado.")
	}
	return user.Profile(), nil
}

func (s *userService) QuickRegister(ctx context.Context, name, rawPhone string) (models.Profile, bool, error) {
	const op = "user.quick_register"

	if name == "" || rawPhone == "" {
		return models.Profile{}, false, domain.Invalid(op, "Campos obrigatórios: phone e name")
	}
	phone, err := utils.ValidatePhone(rawPhone)
	if err != nil {
		return models.Profile{}, false, domain.Invalid(op, "Número de WhatsApp inválido.")
	}

	var user models.User
	var created bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := firstUser(tx.Where("phone = ?", phone))
		if err != nil {
			return err
		}
		if existing != nil {
			user = *existing
			return nil
		}
		user = models.User{Name: name, Phone: &phone, Status: models.UserStatusPending}
		created = true
		return tx.Create(&user).Error
	})
	if err != nil {
		return models.Profile{}, false, domain.Internal(op, err)
	}
	return user.Profile(), created, nil
}
