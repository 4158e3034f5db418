package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/vikasavnish/savepad/internal/domain"
	"github.com/vikasavnish/savepad/internal/models"
	"github.com/vikasavnish/savepad/internal/utils"
)

// ErrCodeNotFound is returned when a code is unknown or expired.
var ErrCodeNotFound = errors.New("verification code not found")

const codeDigits = 6

// CodeStore keeps short-lived contact verification codes.
type CodeStore interface {
	Save(ctx context.Context, code string, userID uint, ttl time.Duration) error
	// Peek returns the owner of code without invalidating it.
	Peek(ctx context.Context, code string) (uint, error)
	// Consume returns the owner of code and invalidates it.
	Consume(ctx context.Context, code string) (uint, error)
}

// RedisCodeStore keeps codes in Redis with a native TTL.
type RedisCodeStore struct {
	client *redis.Client
	prefix string
}

func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client, prefix: "savepad:link:"}
}

func (s *RedisCodeStore) Save(ctx context.Context, code string, userID uint, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+code, strconv.FormatUint(uint64(userID), 10), ttl).Err()
}

func (s *RedisCodeStore) Peek(ctx context.Context, code string) (uint, error) {
	return parseCodeEntry(s.client.Get(ctx, s.prefix+code).Result())
}

func (s *RedisCodeStore) Consume(ctx context.Context, code string) (uint, error) {
	return parseCodeEntry(s.client.GetDel(ctx, s.prefix+code).Result())
}

func parseCodeEntry(val string, err error) (uint, error) {
	if errors.Is(err, redis.Nil) {
		return 0, ErrCodeNotFound
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt code entry %q: %w", val, err)
	}
	return uint(id), nil
}

// DBCodeStore keeps codes on the user row. Used when Redis is unavailable.
type DBCodeStore struct {
	db *gorm.DB
}

func NewDBCodeStore(db *gorm.DB) *DBCodeStore {
	return &DBCodeStore{db: db}
}

func (s *DBCodeStore) Save(ctx context.Context, code string, userID uint, ttl time.Duration) error {
	expires := time.Now().Add(ttl)
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"verification_code": code,
		"code_expires_at":   expires,
	}).Error
}

func (s *DBCodeStore) Peek(ctx context.Context, code string) (uint, error) {
	user, err := firstUser(s.db.WithContext(ctx).Where("verification_code = ? AND code_expires_at > ?", code, time.Now()))
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, ErrCodeNotFound
	}
	return user.ID, nil
}

func (s *DBCodeStore) Consume(ctx context.Context, code string) (uint, error) {
	var userID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := firstUser(tx.Where("verification_code = ? AND code_expires_at > ?", code, time.Now()))
		if err != nil {
			return err
		}
		if user == nil {
			return ErrCodeNotFound
		}
		userID = user.ID
		return tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
			"verification_code": "",
			"code_expires_at":   nil,
		}).Error
	})
	return userID, err
}

// VerificationService links a user's WhatsApp number through a short code
// the user sends to the messaging bot.
type VerificationService interface {
	IssueCode(ctx context.Context, userID uint) (models.LinkCodeResponse, error)
	LinkStatus(ctx context.Context, userRef string) (models.LinkStatusResponse, error)
	VerifyCode(ctx context.Context, code, phone string) (models.ConfirmResult, error)
}

type verificationService struct {
	db     *gorm.DB
	codes  CodeStore
	family FamilyService
	ttl    time.Duration
}

// NewVerificationService creates a new verification service
func NewVerificationService(db *gorm.DB, codes CodeStore, family FamilyService, ttl time.Duration) VerificationService {
	if codes == nil {
		codes = NewDBCodeStore(db)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &verificationService{
		db:     db,
		codes:  codes,
		family: family,
		ttl:    ttl,
	}
}

func (s *verificationService) IssueCode(ctx context.Context, userID uint) (models.LinkCodeResponse, error) {
	const op = "verification.issue"

	user, err := firstUser(s.db.WithContext(ctx).Where("id = ?", userID))
	if err != nil {
		return models.LinkCodeResponse{}, domain.Internal(op, err)
	}
	if user == nil {
		return models.LinkCodeResponse{}, domain.NotFound(op, "Usuário não encontrado.")
	}

	code, err := newCode()
	if err != nil {
		return models.LinkCodeResponse{}, domain.Internal(op, err)
	}
	if err := s.codes.Save(ctx, code, user.ID, s.ttl); err != nil {
		return models.LinkCodeResponse{}, domain.Internal(op, err)
	}

	log.Ctx(ctx).Info().Uint("user_id", user.ID).Msg("verification code issued")
	return models.LinkCodeResponse{Code: code, ExpiresIn: int(s.ttl.Seconds())}, nil
}

func (s *verificationService) LinkStatus(ctx context.Context, userRef string) (models.LinkStatusResponse, error) {
	const op = "verification.status"

	user, err := findUser(s.db.WithContext(ctx), userRef)
	if err != nil {
		return models.LinkStatusResponse{}, domain.Internal(op, err)
	}
	if user == nil {
		return models.LinkStatusResponse{}, domain.NotFound(op, "Usuário não encontrado.")
	}

	return models.LinkStatusResponse{
		Linked: user.VerifiedAt != nil && user.PhoneValue() != "",
		Phone:  user.PhoneValue(),
		Status: user.Status,
	}, nil
}

func (s *verificationService) VerifyCode(ctx context.Context, code, phone string) (models.ConfirmResult, error) {
	const op = "verification.verify"

	if code == "" || phone == "" {
		return models.ConfirmResult{}, domain.Invalid(op, "Código e telefone são obrigatórios.")
	}

	if _, err := utils.ValidatePhone(phone); err != nil {
		return models.ConfirmResult{}, domain.Invalid(op, "Número de WhatsApp inválido.")
	}

	// the code survives a failed confirmation and is spent only on success
	userID, err := s.codes.Peek(ctx, code)
	if errors.Is(err, ErrCodeNotFound) {
		return models.ConfirmResult{}, domain.Invalid(op, "Código inválido ou expirado.")
	}
	if err != nil {
		return models.ConfirmResult{}, domain.Internal(op, err)
	}

	res, err := s.family.ConfirmContact(ctx, strconv.FormatUint(uint64(userID), 10), phone)
	if err != nil {
		return models.ConfirmResult{}, err
	}

	if _, err := s.codes.Consume(ctx, code); err != nil {
		log.Ctx(ctx).Warn().Err(err).Uint("user_id", userID).Msg("verification code already spent")
	}
	return res, nil
}

func newCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
