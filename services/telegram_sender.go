package services

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPISender delivers replies through the Telegram Bot API.
type BotAPISender struct {
	api *tgbotapi.BotAPI
}

func NewBotAPISender(api *tgbotapi.BotAPI) *BotAPISender {
	return &BotAPISender{api: api}
}

func (s *BotAPISender) Send(chatID int64, text string) error {
	_, err := s.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// IncomingFromMessage maps a Telegram message onto the engine's
// transport-neutral form. For photo messages the highest resolution variant
// is kept.
func IncomingFromMessage(message *tgbotapi.Message) IncomingMessage {
	msg := IncomingMessage{
		TelegramID: message.From.ID,
		ChatID:     message.Chat.ID,
		MessageID:  message.MessageID,
		Username:   message.From.UserName,
		Text:       message.Text,
	}

	if len(message.Photo) > 0 {
		msg.PhotoFileID = message.Photo[len(message.Photo)-1].FileID
		if msg.Text == "" {
			msg.Text = message.Caption
		}
	}

	return msg
}
