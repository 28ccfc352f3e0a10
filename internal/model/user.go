package model

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// swagger:model User
type User struct {
	BaseModel
	Email     string    `gorm:"size:255;unique;not null" json:"email"`
	Password  string    `gorm:"size:100;not null" json:"-"`
	FullName  string    `gorm:"size:255" json:"full_name"`
	Role      UserRole  `gorm:"size:20;default:'user'" json:"role"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	LastLogin time.Time `json:"last_login"`
}

func (User) TableName() string {
	return "users"
}
