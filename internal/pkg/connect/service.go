// Package connect manages contractor payout accounts at the gateway:
// idempotent onboarding, status mapping, and dashboard links.
package connect

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/LukasWeber/TradiePay/app/models"
	"github.com/LukasWeber/TradiePay/app/repository"
	"github.com/LukasWeber/TradiePay/internal/pkg/gateway"
)

var (
	// ErrNotFound means the contractor has no connect account yet.
	ErrNotFound = errors.New("connect: no account for contractor")
	// ErrNotOnboarded means the account exists but has not completed
	// onboarding, so gateway-hosted management pages are unavailable.
	ErrNotOnboarded = errors.New("connect: account has not completed onboarding")
)

// Service manages contractor connect accounts.
type Service struct {
	repo       repository.ConnectAccountRepository
	users      repository.UserRepository
	gw         gateway.Client
	refreshURL string
	returnURL  string
}

// NewService creates a connect service. refreshURL/returnURL are where the
// gateway sends the contractor after the hosted onboarding flow.
func NewService(repo repository.ConnectAccountRepository, users repository.UserRepository, gw gateway.Client, refreshURL, returnURL string) *Service {
	return &Service{repo: repo, users: users, gw: gw, refreshURL: refreshURL, returnURL: returnURL}
}

// SetupResult is returned by SetupContractorConnectAccount.
type SetupResult struct {
	AccountID     string `json:"account_id"`
	OnboardingURL string `json:"onboarding_url"`
	Status        string `json:"status"`
}

// SetupContractorConnectAccount is idempotent: an existing gateway account
// is reused and only a fresh onboarding link is issued; otherwise the
// account is created and persisted first.
func (s *Service) SetupContractorConnectAccount(ctx context.Context, contractorID uint) (*SetupResult, error) {
	account, err := s.repo.GetByContractorID(contractorID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		account, err = s.createAccount(ctx, contractorID)
		if err != nil {
			return nil, err
		}
	}

	link, err := s.gw.CreateAccountLink(ctx, account.GatewayAccountID, s.refreshURL, s.returnURL)
	if err != nil {
		return nil, err
	}

	return &SetupResult{
		AccountID:     account.GatewayAccountID,
		OnboardingURL: link,
		Status:        account.Status,
	}, nil
}

func (s *Service) createAccount(ctx context.Context, contractorID uint) (*models.ConnectAccount, error) {
	user, err := s.users.GetByID(contractorID)
	if err != nil {
		return nil, err
	}

	created, err := s.gw.CreateConnectAccount(ctx, user.Email)
	if err != nil {
		return nil, err
	}

	account := &models.ConnectAccount{
		ContractorID:     contractorID,
		GatewayAccountID: created.ID,
		Status:           mapAccountStatus(created),
	}
	if err := s.repo.Create(account); err != nil {
		// Unique contractor_id index: a concurrent setup won the insert.
		// Reuse its row; the gateway account we just created is orphaned
		// but harmless (never onboarded, never referenced).
		existing, lookupErr := s.repo.GetByContractorID(contractorID)
		if lookupErr != nil {
			return nil, err
		}
		return existing, nil
	}
	return account, nil
}

// GetConnectAccountStatus re-queries the gateway on every call, maps the
// verification state into the status enum and persists the result.
func (s *Service) GetConnectAccountStatus(ctx context.Context, contractorID uint) (string, error) {
	account, err := s.repo.GetByContractorID(contractorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}

	remote, err := s.gw.GetAccount(ctx, account.GatewayAccountID)
	if err != nil {
		return "", err
	}

	status := mapAccountStatus(remote)
	if status != account.Status {
		if err := s.repo.UpdateStatus(account.ID, status); err != nil {
			return "", err
		}
	}
	return status, nil
}

// DashboardLink returns a gateway-hosted management URL for an onboarded
// account.
func (s *Service) DashboardLink(ctx context.Context, contractorID uint) (string, error) {
	account, err := s.repo.GetByContractorID(contractorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if account.Status == models.ConnectStatusPending {
		return "", ErrNotOnboarded
	}
	return s.gw.CreateLoginLink(ctx, account.GatewayAccountID)
}

// ApplyAccountUpdated refreshes the stored status from an account webhook.
// Accounts we never issued are ignored.
func (s *Service) ApplyAccountUpdated(ctx context.Context, remote *gateway.Account) error {
	_ = ctx
	account, err := s.repo.GetByGatewayAccountID(remote.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	status := mapAccountStatus(remote)
	if status == account.Status {
		return nil
	}
	return s.repo.UpdateStatus(account.ID, status)
}

// mapAccountStatus folds the gateway's verification fields into the small
// status enum.
func mapAccountStatus(a *gateway.Account) string {
	reason := strings.ToLower(strings.TrimSpace(a.DisabledReason))
	switch {
	case strings.HasPrefix(reason, "rejected"):
		return models.ConnectStatusRejected
	case reason != "":
		return models.ConnectStatusDisabled
	case a.ChargesEnabled && a.PayoutsEnabled:
		return models.ConnectStatusActive
	default:
		return models.ConnectStatusPending
	}
}
