package models

import (
	"gorm.io/gorm"
)

// TelegramLink binds an external Telegram identity to exactly one User account.
type TelegramLink struct {
	gorm.Model
	UserID           uint   `json:"userID" gorm:"uniqueIndex"`
	TelegramID       int64  `json:"telegramID" gorm:"uniqueIndex"`
	TelegramUsername string `json:"telegramUsername"`
	IsActive         *bool  `json:"isActive" gorm:"default:true"`
	User             User   `json:"user" gorm:"foreignKey:UserID;references:ID"`
}
