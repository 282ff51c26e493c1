package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/LukasWeber/TradiePay/internal/pkg/connect"
	"github.com/LukasWeber/TradiePay/internal/pkg/usercontext"
)

var connectService *connect.Service

// InitializeConnectController wires the connect service into the handlers.
func InitializeConnectController(svc *connect.Service) {
	connectService = svc
}

// HandleConnectSetup creates or reuses the caller's payout account and
// returns a fresh onboarding link.
func HandleConnectSetup(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Authentication required"})
	}

	result, err := connectService.SetupContractorConnectAccount(c.UserContext(), userCtx.UserID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// HandleConnectStatus re-queries the gateway and returns the current
// onboarding status of the caller's payout account.
func HandleConnectStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Authentication required"})
	}

	status, err := connectService.GetConnectAccountStatus(c.UserContext(), userCtx.UserID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": status})
}

// HandleConnectDashboardLink returns a one-time login link to the hosted
// payout dashboard. Only available once onboarding is complete.
func HandleConnectDashboardLink(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Authentication required"})
	}

	url, err := connectService.DashboardLink(c.UserContext(), userCtx.UserID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": url})
}
