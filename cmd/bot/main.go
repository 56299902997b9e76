package main

import (
	"log"
	"os"

	"landmarket-server/services"
	"landmarket-server/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
)

func main() {
	if os.Getenv("RENDER") == "" {
		godotenv.Load()
	}

	storage.InitializeDB()

	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is not set")
	}
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		log.Fatalf("telegram bot init failed: %v", err)
	}
	log.Printf("bot started as @%s", api.Self.UserName)

	engine := services.NewTelegramBotService(
		services.NewGormBotStore(storage.DB),
		services.NewBotAPISender(api),
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil || update.Message.From == nil {
			continue
		}
		engine.HandleMessage(services.IncomingFromMessage(update.Message))
	}
}
