package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	RoleMember  UserRole = "member"
	RoleTrainer UserRole = "trainer"
)

type User struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	DisplayName string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"displayName"`
	Role        UserRole  `gorm:"type:varchar(16);not null;default:member" json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}
