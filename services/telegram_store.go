package services

import (
	"encoding/json"
	"landmarket-server/models"
	"time"

	"gorm.io/gorm"
)

// BotStore is the persistence boundary of the dialogue engine. Lookups return
// (nil, nil) when the record does not exist so callers can distinguish
// "absent" from a storage failure.
type BotStore interface {
	LinkByTelegramID(telegramID int64) (*models.TelegramLink, error)
	LinkCodeByCode(code string) (*models.TelegramLinkCode, error)
	// RedeemLinkCode marks the code used and creates the Telegram link in one
	// transaction.
	RedeemLinkCode(code *models.TelegramLinkCode, telegramID int64, username string) error
	GetOrCreateConversation(telegramID int64) (*models.TelegramConversation, error)
	SaveConversation(conversation *models.TelegramConversation) error
	// CreatePropertyAndAdvance persists the new property and the
	// conversation's transition into the image-collection state in one
	// transaction: either both land or neither does. On failure the
	// in-memory conversation is left as it was.
	CreatePropertyAndAdvance(property *models.Property, conversation *models.TelegramConversation) error
	// AttachImagesAndFinish persists the property images and resets the
	// conversation to idle in one transaction, so a replayed selection can
	// never attach the same batch twice.
	AttachImagesAndFinish(images []models.PropertyImage, conversation *models.TelegramConversation) error
	PropertyForOwner(propertyID, userID uint) (*models.Property, error)
	PropertiesByOwner(userID uint) ([]models.Property, error)
	LogMessage(message *models.TelegramMessage) error

	CountStaleConversations(cutoff time.Time) (int64, error)
	ResetStaleConversations(cutoff time.Time) (int64, error)
	CountExpiredLinkCodes(now time.Time) (int64, error)
	DeleteExpiredLinkCodes(now time.Time) (int64, error)
}

type gormBotStore struct {
	db *gorm.DB
}

func NewGormBotStore(db *gorm.DB) BotStore {
	return &gormBotStore{db: db}
}

func (s *gormBotStore) LinkByTelegramID(telegramID int64) (*models.TelegramLink, error) {
	var link models.TelegramLink
	result := s.db.Where("telegram_id = ? AND is_active = true", telegramID).Limit(1).Find(&link)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &link, nil
}

func (s *gormBotStore) LinkCodeByCode(code string) (*models.TelegramLinkCode, error) {
	var linkCode models.TelegramLinkCode
	result := s.db.Where("code = ?", code).Limit(1).Find(&linkCode)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &linkCode, nil
}

func (s *gormBotStore) RedeemLinkCode(code *models.TelegramLinkCode, telegramID int64, username string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		code.IsUsed = true
		code.TelegramID = &telegramID
		if err := tx.Save(code).Error; err != nil {
			return err
		}
		link := models.TelegramLink{
			UserID:           code.UserID,
			TelegramID:       telegramID,
			TelegramUsername: username,
		}
		return tx.Create(&link).Error
	})
}

func (s *gormBotStore) GetOrCreateConversation(telegramID int64) (*models.TelegramConversation, error) {
	var conversation models.TelegramConversation
	result := s.db.Where("telegram_id = ?", telegramID).Limit(1).Find(&conversation)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		conversation = models.TelegramConversation{
			TelegramID: telegramID,
			State:      models.ConversationStateIdle,
		}
		if err := s.db.Create(&conversation).Error; err != nil {
			return nil, err
		}
	}
	return &conversation, nil
}

func (s *gormBotStore) SaveConversation(conversation *models.TelegramConversation) error {
	return s.db.Save(conversation).Error
}

func (s *gormBotStore) CreatePropertyAndAdvance(property *models.Property, conversation *models.TelegramConversation) error {
	previousState, previousContext := conversation.State, conversation.Context
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(property).Error; err != nil {
			return err
		}
		encoded, err := json.Marshal(ConversationContext{PropertyID: property.ID})
		if err != nil {
			return err
		}
		conversation.State = models.ConversationStateAwaitingImages
		conversation.Context = encoded
		return tx.Save(conversation).Error
	})
	if err != nil {
		conversation.State, conversation.Context = previousState, previousContext
	}
	return err
}

func (s *gormBotStore) AttachImagesAndFinish(images []models.PropertyImage, conversation *models.TelegramConversation) error {
	previousState, previousContext := conversation.State, conversation.Context
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&images).Error; err != nil {
			return err
		}
		conversation.State = models.ConversationStateIdle
		conversation.Context = nil
		return tx.Save(conversation).Error
	})
	if err != nil {
		conversation.State, conversation.Context = previousState, previousContext
	}
	return err
}

func (s *gormBotStore) PropertyForOwner(propertyID, userID uint) (*models.Property, error) {
	var property models.Property
	result := s.db.Where("id = ? AND owner_id = ?", propertyID, userID).Limit(1).Find(&property)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &property, nil
}

func (s *gormBotStore) PropertiesByOwner(userID uint) ([]models.Property, error) {
	var properties []models.Property
	err := s.db.Where("owner_id = ?", userID).Order("created_at DESC").Find(&properties).Error
	return properties, err
}

func (s *gormBotStore) LogMessage(message *models.TelegramMessage) error {
	return s.db.Create(message).Error
}

func (s *gormBotStore) CountStaleConversations(cutoff time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.TelegramConversation{}).
		Where("state <> ? AND updated_at < ?", models.ConversationStateIdle, cutoff).
		Count(&count).Error
	return count, err
}

func (s *gormBotStore) ResetStaleConversations(cutoff time.Time) (int64, error) {
	result := s.db.Model(&models.TelegramConversation{}).
		Where("state <> ? AND updated_at < ?", models.ConversationStateIdle, cutoff).
		Updates(map[string]interface{}{"state": models.ConversationStateIdle, "context": nil})
	return result.RowsAffected, result.Error
}

func (s *gormBotStore) CountExpiredLinkCodes(now time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.TelegramLinkCode{}).
		Where("is_used = false AND expires_at < ?", now).
		Count(&count).Error
	return count, err
}

func (s *gormBotStore) DeleteExpiredLinkCodes(now time.Time) (int64, error) {
	result := s.db.Where("is_used = false AND expires_at < ?", now).
		Delete(&models.TelegramLinkCode{})
	return result.RowsAffected, result.Error
}

// CleanupTelegram resets conversations untouched for longer than the timeout
// back to idle with an empty context, and deletes expired unused link codes.
// With dryRun set the counts are reported without mutating anything. The
// operation is idempotent and safe to run concurrently with live traffic.
func CleanupTelegram(store BotStore, conversationTimeout time.Duration, dryRun bool) (conversations int64, codes int64, err error) {
	now := timeNow()
	cutoff := now.Add(-conversationTimeout)

	conversations, err = store.CountStaleConversations(cutoff)
	if err != nil {
		return 0, 0, err
	}
	codes, err = store.CountExpiredLinkCodes(now)
	if err != nil {
		return 0, 0, err
	}
	if dryRun {
		return conversations, codes, nil
	}

	conversations, err = store.ResetStaleConversations(cutoff)
	if err != nil {
		return conversations, codes, err
	}
	codes, err = store.DeleteExpiredLinkCodes(now)
	return conversations, codes, err
}
