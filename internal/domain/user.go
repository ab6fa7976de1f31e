package domain

import "time"

// User is the identity record owned by the account subsystem. The core only
// reads it.
type User struct {
	UserID       int64     `json:"user_id" gorm:"column:user_id;primaryKey"`
	ID           string    `json:"id" gorm:"column:id;size:64;uniqueIndex;not null"`
	Username     string    `json:"username" gorm:"column:username;size:64;not null"`
	Email        string    `json:"email" gorm:"column:email;size:128;not null"`
	PasswordHash string    `json:"-" gorm:"column:password_hash;not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) Principal() Principal {
	return Principal{
		ExternalID:  u.ID,
		InternalID:  u.UserID,
		DisplayName: u.Username,
		Contact:     u.Email,
	}
}

// Principal is the identity value passed around by token and penalty code.
// ExternalID is the token subject and revocation key; InternalID keys the
// penalty records.
type Principal struct {
	ExternalID  string
	InternalID  int64
	DisplayName string
	Contact     string
}
