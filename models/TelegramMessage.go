package models

import (
	"gorm.io/gorm"
)

const (
	TelegramMessageText    = "text"
	TelegramMessagePhoto   = "photo"
	TelegramMessageCommand = "command"
)

// TelegramMessage logs inbound bot traffic for debugging and history.
type TelegramMessage struct {
	gorm.Model
	TelegramID        int64  `json:"telegramID" gorm:"index"`
	TelegramMessageID int    `json:"telegramMessageID"`
	MessageType       string `json:"messageType" gorm:"type:varchar(20);default:text"`
	Content           string `json:"content" gorm:"type:text"`
}
