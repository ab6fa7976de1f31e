package auth

import "time"

type LoginRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type LoginResponse struct {
	EndDate *time.Time `json:"end_date"`
	Allowed bool       `json:"allowed"`
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}
