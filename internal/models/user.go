package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles. Role checks happen in the authorization middleware; services
// assume the caller was already vetted.
const (
	RoleAdmin          = "admin"
	RoleManager        = "manager"
	RoleSupervisor     = "supervisor"
	RoleFieldExecutive = "field_executive"
	RoleHR             = "hr"
	RoleAnalytic       = "analytic"
)

// User represents an account in the system (admin, supervisor, field
// executive, etc.)
// Standardized: Go (PascalCase) -> DB (snake_case) -> JSON (camelCase)
type User struct {
	ID                  string     `gorm:"primaryKey;type:uuid" json:"id"`
	Username            string     `gorm:"unique;not null" json:"username"`
	Password            string     `gorm:"not null" json:"-"`
	Email               string     `gorm:"unique;not null" json:"email"`
	FirstName           string     `json:"firstName,omitempty"`
	LastName            string     `json:"lastName,omitempty"`
	Phone               string     `json:"phone,omitempty"`
	EmpID               string     `gorm:"index" json:"empId,omitempty"`
	Role                string     `gorm:"default:'field_executive'" json:"role"`
	IsActive            bool       `gorm:"default:true" json:"isActive"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
	FailedLoginAttempts int        `gorm:"default:0" json:"-"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}
