package models

import (
	"time"
)

// FamilyMember links a member account to the owner of a family plan.
// Invites bind a placeholder user right away. A nil MemberID only appears on
// invites carried over from the legacy schema, keyed by phone or email.
type FamilyMember struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OwnerID        uint      `json:"ownerId" gorm:"column:owner_id;not null;uniqueIndex:idx_family_owner_member"`
	MemberID       *uint     `json:"memberId,omitempty" gorm:"column:member_id;uniqueIndex:idx_family_owner_member"`
	Name           string    `json:"name"`
	WhatsappNumber string    `json:"whatsappNumber,omitempty" gorm:"column:whatsapp_number;index"`
	Email          string    `json:"email,omitempty" gorm:"column:email;index"`
	CreatedAt      time.Time `json:"createdAt" gorm:"column:created_at"`
	Owner          *User     `json:"-" gorm:"foreignKey:OwnerID"`
	Member         *User     `json:"-" gorm:"foreignKey:MemberID"`
}

// TableName specifies the table name for FamilyMember model
func (FamilyMember) TableName() string {
	return "family_members"
}

// AddMemberRequest is the body of POST /family/add
type AddMemberRequest struct {
	OwnerID     FlexibleID `json:"owner_id" validate:"required"`
	Name        string     `json:"name" validate:"required"`
	Phone       string     `json:"phone" validate:"required_without=MemberEmail"`
	MemberEmail string     `json:"member_email" validate:"omitempty,email"`
}

// RemoveMemberRequest is the body of DELETE /family/remove
type RemoveMemberRequest struct {
	OwnerID    FlexibleID `json:"owner_id" validate:"required"`
	RelationID uint       `json:"relation_id"`
	MemberID   FlexibleID `json:"member_id" validate:"required_without=RelationID"`
}

// LeaveRequest is the body of DELETE /family/leave
type LeaveRequest struct {
	MemberID FlexibleID `json:"member_id" validate:"required"`
}

// ConfirmContactRequest is the body of POST /family/confirm-whatsapp
type ConfirmContactRequest struct {
	UserID FlexibleID `json:"user_id" validate:"required"`
	Phone  string     `json:"phone" validate:"required"`
}

// MemberView is one entry of a family listing.
type MemberView struct {
	RelationID uint   `json:"id"`
	MemberID   *uint  `json:"member_id"`
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	IsLinked   bool   `json:"is_linked"`
}

// Family is the resolved family of a user.
type Family struct {
	OwnerID uint         `json:"owner_id"`
	Owner   *Profile     `json:"owner"`
	Members []MemberView `json:"members"`
	Total   int          `json:"total"`
}
