package controllers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/LukasWeber/TradiePay/internal/pkg/webhook"
)

var webhookProcessor *webhook.Processor

// InitializeWebhookController wires the webhook processor into the handler.
func InitializeWebhookController(p *webhook.Processor) {
	webhookProcessor = p
}

// HandleStripeWebhook receives gateway event deliveries. Duplicates and
// unhandled event types are acknowledged with 200 so the gateway stops
// redelivering them; handler failures return 500 to request a redelivery.
func HandleStripeWebhook(c *fiber.Ctx) error {
	outcome, err := webhookProcessor.Process(c.UserContext(), c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, webhook.ErrSignatureVerificationFailed) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature", "message": "Webhook signature verification failed"})
		}
		log.Printf("[Webhook] processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed", "message": "Event processing failed"})
	}

	switch outcome {
	case webhook.OutcomeDuplicate:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	case webhook.OutcomeIgnored:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "ignored": true})
	default:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
	}
}
