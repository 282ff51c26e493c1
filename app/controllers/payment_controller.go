package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/LukasWeber/TradiePay/app/repository"
	"github.com/LukasWeber/TradiePay/internal/pkg/payments"
	"github.com/LukasWeber/TradiePay/internal/pkg/usercontext"
)

var paymentService *payments.Service

// InitializePaymentController wires the orchestrator used by the payment
// handlers.
func InitializePaymentController(svc *payments.Service) {
	paymentService = svc
}

// CreateJobPaymentRequest is the body for creating a ledger record.
type CreateJobPaymentRequest struct {
	JobRequestID    uint  `json:"job_request_id" validate:"required"`
	ContractorID    uint  `json:"contractor_id" validate:"required"`
	BidID           uint  `json:"bid_id" validate:"required"`
	TotalAmount     int64 `json:"total_amount" validate:"required,gt=0"`
	PreStartBilling bool  `json:"pre_start_billing"`
}

// RefundRequest is the body for issuing a refund.
type RefundRequest struct {
	GatewayIntentID string `json:"gateway_intent_id" validate:"required"`
	Amount          int64  `json:"amount" validate:"required,gt=0"`
	Reason          string `json:"reason" validate:"required,max=500"`
}

// HandleCreateJobPayment creates the payment record for an accepted bid.
func HandleCreateJobPayment(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Authentication required"})
	}

	var req CreateJobPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": err.Error()})
	}

	p, err := paymentService.CreateJobPaymentRecord(payments.CreateInput{
		JobRequestID:    req.JobRequestID,
		CustomerID:      userCtx.UserID,
		ContractorID:    req.ContractorID,
		BidID:           req.BidID,
		TotalAmount:     req.TotalAmount,
		PreStartBilling: req.PreStartBilling,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// HandleJobDepositPayment initiates the deposit capture.
func HandleJobDepositPayment(c *fiber.Ctx) error {
	return handleStagePayment(c, paymentService.ProcessJobDepositPayment)
}

// HandleJobPreStartPayment initiates the pre-start capture.
func HandleJobPreStartPayment(c *fiber.Ctx) error {
	return handleStagePayment(c, paymentService.ProcessJobPreStartPayment)
}

// HandleJobCompletionPayment initiates the completion capture.
func HandleJobCompletionPayment(c *fiber.Ctx) error {
	return handleStagePayment(c, paymentService.ProcessJobCompletionPayment)
}

func handleStagePayment(c *fiber.Ctx, fn func(ctx context.Context, publicID string, callerID uint) (*payments.StagePaymentResult, error)) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Authentication required"})
	}

	result, err := fn(c.Context(), c.Params("id"), userCtx.UserID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// HandleJobRefundPayment issues a refund against a captured intent.
func HandleJobRefundPayment(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Authentication required"})
	}

	var req RefundRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": err.Error()})
	}

	p, err := paymentService.ProcessJobRefundPayment(c.Context(), c.Params("id"), userCtx.UserID, req.GatewayIntentID, req.Amount, req.Reason)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(p)
}

// HandleGetJobPayment returns one payment record the caller participates in.
func HandleGetJobPayment(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Authentication required"})
	}

	p, err := paymentService.GetForUser(c.Params("id"), userCtx.UserID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(p)
}

// HistoryItem is one row of the unified payment history.
type HistoryItem struct {
	Type           string    `json:"type"`
	ReferenceID    string    `json:"reference_id"`
	Status         string    `json:"status"`
	Amount         int64     `json:"amount"`
	CapturedAmount int64     `json:"captured_amount,omitempty"`
	RefundedAmount int64     `json:"refunded_amount,omitempty"`
	PlanID         string    `json:"plan_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// HandlePaymentHistory lists the caller's payment history, paginated, with
// optional status and type filters.
func HandlePaymentHistory(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Authentication required"})
	}

	page, limit := parsePageParams(c)
	status := c.Query("status")
	itemType := c.Query("type", "job")
	offset := (page - 1) * limit

	repos := repository.GetGlobalFactory().GetRepositories()

	var items []HistoryItem
	var total int64

	switch itemType {
	case "membership":
		records, count, err := repos.Membership.ListByUser(userCtx.UserID, status, offset, limit)
		if err != nil {
			return respondServiceError(c, err)
		}
		total = count
		for _, m := range records {
			items = append(items, HistoryItem{
				Type:        "membership",
				ReferenceID: m.GatewaySubscriptionID,
				Status:      m.Status,
				PlanID:      m.PlanID,
				CreatedAt:   m.CreatedAt,
			})
		}
	case "job":
		jobs, count, err := repos.JobPayment.List(repository.JobPaymentListFilter{
			UserID: userCtx.UserID,
			Status: status,
			Offset: offset,
			Limit:  limit,
		})
		if err != nil {
			return respondServiceError(c, err)
		}
		total = count
		for _, p := range jobs {
			items = append(items, HistoryItem{
				Type:           "job",
				ReferenceID:    p.PublicID,
				Status:         p.Stage,
				Amount:         p.TotalAmount,
				CapturedAmount: p.CapturedAmount,
				RefundedAmount: p.RefundedAmount,
				CreatedAt:      p.CreatedAt,
			})
		}
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": "type must be job or membership"})
	}

	if items == nil {
		items = []HistoryItem{}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"items":      items,
		"pagination": NewPagination(page, limit, total),
	})
}

// HandlePaymentStats returns the caller's aggregated ledger activity.
func HandlePaymentStats(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Authentication required"})
	}

	stats, err := repository.GetGlobalFactory().GetRepositories().JobPayment.StatsByUser(userCtx.UserID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}
