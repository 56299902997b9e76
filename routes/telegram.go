package routes

import (
	"os"
	"strconv"
	"time"

	"landmarket-server/models"
	"landmarket-server/services"
	"landmarket-server/storage"
	"landmarket-server/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kataras/iris/v12"
)

const defaultLinkCodeExpiryMinutes = 10

// TelegramWebhook adapts incoming bot updates onto the dialogue engine. The
// response is always 200 so Telegram never retries a processed update.
func TelegramWebhook(bot *services.TelegramBotService) iris.Handler {
	return func(ctx iris.Context) {
		var update tgbotapi.Update
		if err := ctx.ReadJSON(&update); err != nil {
			ctx.StatusCode(iris.StatusOK)
			return
		}

		if update.Message == nil || update.Message.From == nil {
			ctx.StatusCode(iris.StatusOK)
			return
		}

		bot.HandleMessage(services.IncomingFromMessage(update.Message))
		ctx.StatusCode(iris.StatusOK)
	}
}

// CreateTelegramLinkCode issues a short-lived code the user sends to the bot
// via /link. A still-valid unused code is returned again instead of minting a
// duplicate.
func CreateTelegramLinkCode(ctx iris.Context) {
	actor := actorFromToken(ctx)

	var link models.TelegramLink
	linkExists := storage.DB.Where("user_id = ? AND is_active = true", actor.ID).Find(&link)
	if linkExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if linkExists.RowsAffected > 0 {
		utils.CreateError(iris.StatusBadRequest, "Already Linked",
			"This account is already linked to a Telegram identity", ctx)
		return
	}

	now := time.Now()
	storage.DB.Where("user_id = ? AND is_used = false AND expires_at < ?", actor.ID, now).
		Delete(&models.TelegramLinkCode{})

	var code models.TelegramLinkCode
	codeExists := storage.DB.
		Where("user_id = ? AND is_used = false AND expires_at >= ?", actor.ID, now).
		Find(&code)
	if codeExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if codeExists.RowsAffected == 0 {
		code = models.TelegramLinkCode{
			UserID:    actor.ID,
			Code:      utils.GenerateLinkCode(8),
			ExpiresAt: now.Add(linkCodeExpiry()),
		}
		if err := storage.DB.Create(&code).Error; err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{
		"code":      code.Code,
		"expiresAt": code.ExpiresAt,
	})
}

func GetTelegramLinkStatus(ctx iris.Context) {
	actor := actorFromToken(ctx)

	var link models.TelegramLink
	linkExists := storage.DB.Where("user_id = ? AND is_active = true", actor.ID).Find(&link)
	if linkExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if linkExists.RowsAffected > 0 {
		ctx.JSON(iris.Map{
			"linked":           true,
			"telegramID":       link.TelegramID,
			"telegramUsername": link.TelegramUsername,
		})
		return
	}

	var code models.TelegramLinkCode
	codeExists := storage.DB.
		Where("user_id = ? AND is_used = false AND expires_at >= ?", actor.ID, time.Now()).
		Find(&code)
	if codeExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	response := iris.Map{"linked": false}
	if codeExists.RowsAffected > 0 {
		response["pendingCode"] = code.Code
		response["expiresAt"] = code.ExpiresAt
	}
	ctx.JSON(response)
}

// AdminTelegramCleanup resets stale conversations and purges expired link
// codes. With dryRun set it only reports what would be touched.
func AdminTelegramCleanup(ctx iris.Context) {
	var input TelegramCleanupInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	timeoutHours := input.TimeoutHours
	if timeoutHours <= 0 {
		timeoutHours = 24
	}

	conversations, codes, err := services.CleanupTelegram(services.NewGormBotStore(storage.DB),
		time.Duration(timeoutHours)*time.Hour, input.DryRun)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if !input.DryRun {
		utils.Audit(ctx, "telegram.cleanup", "telegram", 0, nil, iris.Map{
			"conversations": conversations,
			"codes":         codes,
			"timeoutHours":  timeoutHours,
		})
	}

	ctx.JSON(iris.Map{
		"dryRun":              input.DryRun,
		"staleConversations":  conversations,
		"expiredLinkCodes":    codes,
		"conversationTimeout": timeoutHours,
	})
}

func linkCodeExpiry() time.Duration {
	minutes := defaultLinkCodeExpiryMinutes
	if raw := os.Getenv("TELEGRAM_LINK_CODE_EXPIRY_MINUTES"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			minutes = parsed
		}
	}
	return time.Duration(minutes) * time.Minute
}

type TelegramCleanupInput struct {
	TimeoutHours int  `json:"timeoutHours"`
	DryRun       bool `json:"dryRun"`
}
