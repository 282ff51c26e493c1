package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/LukasWeber/TradiePay/app/controllers"
	"github.com/LukasWeber/TradiePay/app/repository"
	"github.com/LukasWeber/TradiePay/internal/pkg/cache"
	"github.com/LukasWeber/TradiePay/internal/pkg/connect"
	"github.com/LukasWeber/TradiePay/internal/pkg/database"
	"github.com/LukasWeber/TradiePay/internal/pkg/env"
	"github.com/LukasWeber/TradiePay/internal/pkg/gateway"
	"github.com/LukasWeber/TradiePay/internal/pkg/memberships"
	"github.com/LukasWeber/TradiePay/internal/pkg/payments"
	"github.com/LukasWeber/TradiePay/internal/pkg/router"
	"github.com/LukasWeber/TradiePay/internal/pkg/webhook"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeGlobalFactory(database.GetDB())
	repos := repository.GetGlobalFactory().GetRepositories()

	stripeClient := gateway.NewStripeClientFromEnv()

	paymentService := payments.NewService(repos.JobPayment, stripeClient)
	membershipService := memberships.NewService(repos.Membership)
	connectService := connect.NewService(
		repos.ConnectAccount,
		repos.User,
		stripeClient,
		env.GetEnv("CONNECT_REFRESH_URL", "http://localhost:4000/connect/refresh"),
		env.GetEnv("CONNECT_RETURN_URL", "http://localhost:4000/connect/return"),
	)

	window := webhook.NewRedisWindow(cache.GetClient(), 24*time.Hour)
	processor := webhook.NewProcessor(repos.WebhookEvent, window, env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
	webhook.RegisterDefaultHandlers(processor, paymentService, membershipService, connectService)

	controllers.InitializePaymentController(paymentService)
	controllers.InitializeConnectController(connectService)
	controllers.InitializeWebhookController(processor)

	// Background cleanup of processed events and lapsed memberships.
	sweeper := webhook.NewSweeper(repos.WebhookEvent, membershipService.ExpireLapsed, time.Hour, 30*24*time.Hour)
	go sweeper.Run(context.Background())

	app := fiber.New(fiber.Config{
		AppName: "TradiePay",
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app)

	return app
}
