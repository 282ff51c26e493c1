package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/LukasWeber/TradiePay/app/controllers"
)

type WebhookRouter struct {
}

// InstallRouter registers the unauthenticated gateway-facing routes. The
// webhook endpoint authenticates deliveries by signature, not API key.
func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/webhooks/stripe", controllers.HandleStripeWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
