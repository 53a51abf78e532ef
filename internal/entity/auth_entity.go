package entity

import "github.com/google/uuid"

type TokenClaims struct {
	UserId   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}
