package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ConversationStateIdle                 = "idle"
	ConversationStateAwaitingConfirmation = "awaiting_property_confirmation"
	ConversationStateAwaitingDetails      = "awaiting_property_details"
	ConversationStateAwaitingImages       = "awaiting_images"
	ConversationStateAwaitingImageChoice  = "awaiting_image_selection"
)

// TelegramConversation is the per-identity state machine record for the
// property intake flow. Exactly one row per Telegram identity; never deleted,
// only reset back to idle. Invariant: state == idle iff Context is empty.
type TelegramConversation struct {
	gorm.Model
	TelegramID int64          `json:"telegramID" gorm:"uniqueIndex"`
	State      string         `json:"state" gorm:"type:varchar(50);default:idle"`
	Context    datatypes.JSON `json:"context"`
}
