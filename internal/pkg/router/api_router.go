package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/LukasWeber/TradiePay/app/controllers"
	"github.com/LukasWeber/TradiePay/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	// API v1 routes, all behind API-key auth
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())

	// Job payments. The stats route registers before :id so it is not
	// swallowed by the parameter match.
	v1.Post("/payments", controllers.HandleCreateJobPayment)
	v1.Get("/payments", controllers.HandlePaymentHistory)
	v1.Get("/payments/stats", controllers.HandlePaymentStats)
	v1.Get("/payments/:id", controllers.HandleGetJobPayment)
	v1.Post("/payments/:id/deposit", controllers.HandleJobDepositPayment)
	v1.Post("/payments/:id/pre-start", controllers.HandleJobPreStartPayment)
	v1.Post("/payments/:id/completion", controllers.HandleJobCompletionPayment)
	v1.Post("/payments/:id/refund", controllers.HandleJobRefundPayment)

	// Contractor payout accounts
	v1.Post("/connect/setup", controllers.HandleConnectSetup)
	v1.Get("/connect/status", controllers.HandleConnectStatus)
	v1.Post("/connect/dashboard-link", controllers.HandleConnectDashboardLink)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
