package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/domain/model"
)

// CreditServiceOptions groups dependencies for CreditService.
type CreditServiceOptions struct {
	Credits core.CreditStore // Required
	Logger  *slog.Logger     // Optional
}

// CreditService provides the ledger operations outside the pipeline: balance
// reads, purchases from billing webhooks, and admin listings.
type CreditService struct {
	credits core.CreditStore
	logger  *slog.Logger
}

// NewCreditService constructs a new CreditService.
func NewCreditService(opts CreditServiceOptions) (*CreditService, error) {
	if opts.Credits == nil {
		return nil, errors.New("CreditStore is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "credit_service")
	}

	return &CreditService{credits: opts.Credits, logger: logger}, nil
}

// MustNewCreditService constructs a new CreditService and panics on error.
func MustNewCreditService(opts CreditServiceOptions) *CreditService {
	svc, err := NewCreditService(opts)
	if err != nil {
		panic(err)
	}
	return svc
}

// Balance returns the user's current balance; unknown users read zero.
func (s *CreditService) Balance(ctx context.Context, userID string) (int64, error) {
	return s.credits.GetBalance(ctx, userID)
}

// Purchase appends a purchase entry for the user.
func (s *CreditService) Purchase(ctx context.Context, params core.PurchaseCreditsParams) (*model.LedgerEntry, error) {
	if params.Amount <= 0 {
		return nil, model.ErrInvalidLedgerAmount
	}

	entry, err := s.credits.Purchase(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("record purchase: %w", err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "credits purchased",
			"user_id", params.UserID,
			"amount", params.Amount,
		)
	}
	return entry, nil
}

// EntriesForUser lists the user's most recent ledger entries.
func (s *CreditService) EntriesForUser(ctx context.Context, userID string, limit int) ([]*model.LedgerEntry, error) {
	return s.credits.EntriesForUser(ctx, userID, limit)
}

// EntriesForJob lists every ledger entry tied to a job, oldest first, so an
// operator can reconstruct how a job was settled.
func (s *CreditService) EntriesForJob(ctx context.Context, jobID string) ([]*model.LedgerEntry, error) {
	return s.credits.EntriesForJob(ctx, jobID)
}
