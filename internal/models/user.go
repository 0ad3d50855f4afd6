package models

import "time"

// User represents a user in the system
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FullName  string    `json:"fullName" db:"full_name"`
	Password  string    `json:"-" db:"password_hash"` // Never expose in JSON
	Bio       string    `json:"bio" db:"bio"`
	Avatar    string    `json:"avatar" db:"avatar"`
	LastSeen  time.Time `json:"lastSeen" db:"last_seen"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// UserResponse is what we send to clients (without sensitive data)
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Bio       string    `json:"bio"`
	Avatar    string    `json:"avatar"`
	LastSeen  time.Time `json:"lastSeen"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Bio:       u.Bio,
		Avatar:    u.Avatar,
		LastSeen:  u.LastSeen,
		CreatedAt: u.CreatedAt,
	}
}
