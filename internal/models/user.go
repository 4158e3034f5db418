package models

import (
	"time"

	"github.com/dgrijalva/jwt-go"
)

// User lifecycle states
const (
	UserStatusInvited = "invited" // placeholder created by a phone invite
	UserStatusPending = "pending" // registered or email invite, contact not verified
	UserStatusActive  = "active"
	UserStatusMerged  = "merged" // placeholder absorbed by a real account
)

type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `json:"name"`
	Email            *string    `gorm:"uniqueIndex" json:"email,omitempty"`
	Phone            *string    `gorm:"uniqueIndex" json:"phone,omitempty"`
	PasswordHash     string     `json:"-" gorm:"column:password_hash"`
	Status           string     `json:"status" gorm:"default:pending"`
	VerificationCode string     `json:"-" gorm:"column:verification_code;index"`
	CodeExpiresAt    *time.Time `json:"-" gorm:"column:code_expires_at"`
	CreatedAt        time.Time  `json:"createdAt" gorm:"column:created_at"`
	VerifiedAt       *time.Time `json:"verifiedAt,omitempty" gorm:"column:verified_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// EmailValue returns the email or "" when unset.
func (u User) EmailValue() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// PhoneValue returns the normalized phone or "" when unset.
func (u User) PhoneValue() string {
	if u.Phone == nil {
		return ""
	}
	return *u.Phone
}

// Profile is the public subset of a user returned by the API.
type Profile struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Status string `json:"status"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.EmailValue(),
		Phone:  u.PhoneValue(),
		Status: u.Status,
	}
}

// Claims for JWT authentication
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.StandardClaims
}

type TokenResponse struct {
	User        Profile `json:"user"`
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
