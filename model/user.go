package model

import "time"

type User struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"unique"` // encrypted at rest
	EmailHash    string `gorm:"uniqueIndex;size:64"`
	Username     string `gorm:"unique;not null"`
	Password     string
	Scopes       string `gorm:"size:512"` // space separated
	IsAdmin      bool   `gorm:"default:false;not null"`
	LastLogin    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	AnonymizedAt *time.Time
	DeletedAt    *time.Time `gorm:"index"`
}

type UserProfile struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"uniqueIndex;not null"`
	FirstName string
	LastName  string
	Bio       string  `gorm:"type:text"`
	AvatarURL *string `gorm:"size:512"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`
}

type Session struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"not null;index"`
	IPAddress  string `gorm:"size:45"`
	UserAgent  string `gorm:"type:text"`
	RevokedAt  *time.Time
	LastSeenAt time.Time
	CreatedAt  time.Time `gorm:"not null;index"`
}
