package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	stripe "github.com/stripe/stripe-go/v74"

	"github.com/LukasWeber/TradiePay/internal/pkg/connect"
	"github.com/LukasWeber/TradiePay/internal/pkg/memberships"
	"github.com/LukasWeber/TradiePay/internal/pkg/payments"
)

var validate = validator.New()

// Pagination is the envelope returned by every paginated list endpoint.
type Pagination struct {
	CurrentPage     int   `json:"currentPage"`
	TotalPages      int   `json:"totalPages"`
	TotalItems      int64 `json:"totalItems"`
	ItemsPerPage    int   `json:"itemsPerPage"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
}

// NewPagination computes the envelope for a page of a result set.
func NewPagination(page, limit int, totalItems int64) Pagination {
	totalPages := int((totalItems + int64(limit) - 1) / int64(limit))
	return Pagination{
		CurrentPage:     page,
		TotalPages:      totalPages,
		TotalItems:      totalItems,
		ItemsPerPage:    limit,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1 && totalItems > 0,
	}
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// parsePageParams reads page/limit query parameters with sane bounds.
func parsePageParams(c *fiber.Ctx) (page, limit int) {
	page = c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit = c.QueryInt("limit", defaultPageLimit)
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

// respondServiceError maps service-layer errors onto the HTTP surface.
// Validation and guard failures resolve locally as client errors; gateway
// failures pass through as a bad-gateway with the gateway's own message.
func respondServiceError(c *fiber.Ctx, err error) error {
	var stripeErr *stripe.Error

	switch {
	case errors.Is(err, payments.ErrNotFound),
		errors.Is(err, memberships.ErrNotFound),
		errors.Is(err, connect.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	case errors.Is(err, payments.ErrNotOwner):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": err.Error()})
	case errors.Is(err, payments.ErrInvalidStateTransition),
		errors.Is(err, connect.ErrNotOnboarded):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invalid_state_transition", "message": err.Error()})
	case errors.Is(err, payments.ErrValidation),
		errors.Is(err, memberships.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": err.Error()})
	case errors.As(err, &stripeErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_error", "message": stripeErr.Msg})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Unexpected error"})
	}
}
