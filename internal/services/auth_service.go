package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/vikasavnish/savepad/internal/domain"
	"github.com/vikasavnish/savepad/internal/models"
	"github.com/vikasavnish/savepad/internal/utils"
)

// AuthService defines the interface for authentication operations
type AuthService interface {
	Register(ctx context.Context, req models.RegisterRequest) (models.User, error)
	Authenticate(ctx context.Context, email, password string) (models.User, error)
	GenerateToken(user models.User) (string, error)
	ParseToken(tokenString string) (*models.Claims, error)
}

// authService implements the AuthService interface
type authService struct {
	db        *gorm.DB
	secretKey []byte
	ttl       time.Duration
}

// NewAuthService creates a new authentication service
func NewAuthService(db *gorm.DB, secretKey []byte, ttl time.Duration) AuthService {
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	return &authService{
		db:        db,
		secretKey: secretKey,
		ttl:       ttl,
	}
}

// Register creates a user with a hashed password
func (s *authService) Register(ctx context.Context, req models.RegisterRequest) (models.User, error) {
	const op = "auth.register"

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return models.User{}, domain.Invalid(op, "Nome, e-mail e senha são obrigatórios.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, domain.Internal(op, err)
	}

	user := models.User{
		Name:         req.Name,
		Email:        &email,
		PasswordHash: string(hash),
		Status:       models.UserStatusPending,
	}
	if req.Phone != "" {
		phone, err := utils.ValidatePhone(req.Phone)
		if err != nil {
			return models.User{}, domain.Invalid(op, "Número de WhatsApp inválido.")
		}
		user.Phone = &phone
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := firstUser(tx.Where("email = ?", email))
		if err != nil {
			return err
		}
		if existing != nil {
			// a bare profile left by an email invite becomes the real account
			if existing.PasswordHash != "" || existing.Status == models.UserStatusMerged {
				return domain.Conflict(op, "E-mail já cadastrado.")
			}
			user.ID = existing.ID
			user.CreatedAt = existing.CreatedAt
			if user.Phone == nil {
				user.Phone = existing.Phone
			}
			return tx.Save(&user).Error
		}
		return tx.Create(&user).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.User{}, domain.Conflict(op, "E-mail ou telefone já cadastrado.")
	}
	if err != nil {
		return models.User{}, wrapStoreError(err, op)
	}
	return user, nil
}

// Authenticate verifies user credentials and returns the user if valid
func (s *authService) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	const op = "auth.login"

	user, err := findUserByEmail(s.db.WithContext(ctx), email)
	if err != nil {
		return models.User{}, domain.Internal(op, err)
	}
	if user == nil || user.PasswordHash == "" {
		return models.User{}, domain.Unauthorized(op, "Credenciais inválidas.")
	}

	// Check password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, domain.Unauthorized(op, "Credenciais inválidas.")
	}

	return *user, nil
}

// GenerateToken creates a new JWT token for the user
func (s *authService) GenerateToken(user models.User) (string, error) {
	now := time.Now()
	claims := &models.Claims{
		UserID: user.ID,
		Email:  user.EmailValue(),
		StandardClaims: jwt.StandardClaims{
			Subject:   fmt.Sprint(user.ID),
			ExpiresAt: now.Add(s.ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", domain.Internal("auth.token", err)
	}

	return tokenString, nil
}

// ParseToken validates an HS256 token and returns its claims
func (s *authService) ParseToken(tokenString string) (*models.Claims, error) {
	return ParseToken(tokenString, s.secretKey)
}

// ParseToken validates an HS256 token signed with secretKey.
func ParseToken(tokenString string, secretKey []byte) (*models.Claims, error) {
	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secretKey, nil
	})
	if err != nil || !token.Valid || claims.UserID == 0 {
		return nil, domain.Unauthorized("auth.parse", "Token inválido ou expirado.")
	}
	return claims, nil
}
