package main

import (
	"fmt"
	"log"
	"os"

	"landmarket-server/routes"
	"landmarket-server/services"
	"landmarket-server/storage"
	"landmarket-server/utils"

	"github.com/go-playground/validator/v10"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

func main() {
	// Only load .env in development
	if os.Getenv("RENDER") == "" {
		godotenv.Load()
	}

	storage.InitializeDB()
	storage.InitializeCloudinary()
	storage.InitializeRedis()

	app := iris.New()
	app.Validator = validator.New()

	// CORS configuration
	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", ctx.GetHeader("Origin"))
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})

	app.Use(iris.Compression)

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	refreshTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("REFRESH_TOKEN_SECRET")))
	refreshTokenVerifier.WithDefaultBlocklist()
	refreshTokenVerifierMiddleware := refreshTokenVerifier.Verify(func() interface{} {
		return new(jwt.Claims)
	})

	refreshTokenVerifier.Extractors = append(refreshTokenVerifier.Extractors, func(ctx iris.Context) string {
		var tokenInput utils.RefreshTokenInput
		err := ctx.ReadJSON(&tokenInput)
		if err != nil {
			return ""
		}
		return tokenInput.RefreshToken
	})

	// Health check endpoint
	app.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"status": "ok"})
	})

	user := app.Party("/api/user")
	{
		user.Post("/register", routes.Register)
		user.Post("/login", routes.Login)
	}

	property := app.Party("/api/property")
	{
		property.Post("/", accessTokenVerifierMiddleware, routes.CreateProperty)
		property.Get("/", accessTokenVerifierMiddleware, routes.ListProperties)
		property.Get("/available", routes.ListAvailableProperties)
		property.Get("/{id}", routes.GetProperty)
		property.Patch("/{id}", accessTokenVerifierMiddleware, routes.UpdateProperty)
		property.Delete("/{id}", accessTokenVerifierMiddleware, routes.DeleteProperty)
		property.Post("/{id}/image", accessTokenVerifierMiddleware, routes.CreatePropertyImage)
		property.Delete("/image/{imageID}", accessTokenVerifierMiddleware, routes.DeletePropertyImage)
	}

	visit := app.Party("/api/visit")
	{
		visit.Post("/", accessTokenVerifierMiddleware, routes.CreateVisitRequest)
		visit.Get("/", accessTokenVerifierMiddleware, routes.ListVisitRequests)
		visit.Patch("/{id}", accessTokenVerifierMiddleware, routes.UpdateVisitRequest)
		visit.Delete("/{id}", accessTokenVerifierMiddleware, routes.DeleteVisitRequest)
	}

	report := app.Party("/api/report")
	{
		report.Post("/", accessTokenVerifierMiddleware, routes.CreatePropertyReport)
		report.Get("/", accessTokenVerifierMiddleware, routes.ListPropertyReports)
		report.Patch("/{id}", accessTokenVerifierMiddleware, routes.UpdatePropertyReport)
	}

	transaction := app.Party("/api/transaction")
	{
		transaction.Post("/", accessTokenVerifierMiddleware, routes.CreateTransaction)
		transaction.Get("/", accessTokenVerifierMiddleware, routes.ListTransactions)
		transaction.Patch("/{id}", accessTokenVerifierMiddleware, routes.UpdateTransaction)
	}

	telegram := app.Party("/api/telegram")
	{
		telegram.Post("/link-code", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, routes.CreateTelegramLinkCode)
		telegram.Get("/link-status", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, routes.GetTelegramLinkStatus)

		if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
			api, err := tgbotapi.NewBotAPI(token)
			if err != nil {
				log.Fatalf("❌ Telegram bot init failed: %v", err)
			}
			bot := services.NewTelegramBotService(
				services.NewGormBotStore(storage.DB),
				services.NewBotAPISender(api),
			)
			telegram.Post("/webhook", routes.TelegramWebhook(bot))
		}
	}

	admin := app.Party("/api/admin", accessTokenVerifierMiddleware, utils.AdminOnlyMiddleware)
	{
		admin.Post("/telegram/cleanup", routes.AdminTelegramCleanup)
	}

	app.Post("/api/refresh", refreshTokenVerifierMiddleware, utils.RefreshToken)

	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}
	addr := "0.0.0.0:" + port

	fmt.Printf("🚀 Server starting on %s\n", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}
}
