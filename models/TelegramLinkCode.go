package models

import (
	"time"

	"gorm.io/gorm"
)

// TelegramLinkCode is a single-use token a user sends to the bot via /link to
// bind their Telegram identity. A code is consumed exactly once or expires
// unused; expiry is checked against ExpiresAt regardless of IsUsed.
type TelegramLinkCode struct {
	gorm.Model
	UserID     uint      `json:"userID" gorm:"index"`
	Code       string    `json:"code" gorm:"uniqueIndex;size:16"`
	TelegramID *int64    `json:"telegramID"` // set on redemption
	IsUsed     bool      `json:"isUsed" gorm:"default:false"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (c *TelegramLinkCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
