package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/domain/model"
)

func (s *Store) balanceLocked(userID string) int64 {
	var balance int64
	for _, e := range s.entries {
		if e.UserID == userID {
			balance += e.Amount
		}
	}
	return balance
}

// GetBalance sums all ledger entries for the user.
func (s *Store) GetBalance(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(userID), nil
}

// Reserve places a hold if the balance covers the amount. The store mutex
// makes the check plus insert atomic, matching the Postgres advisory lock.
func (s *Store) Reserve(_ context.Context, params core.ReserveCreditsParams) (bool, error) {
	if params.Amount <= 0 {
		return false, model.ErrInvalidLedgerAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balanceLocked(params.UserID) < params.Amount {
		return false, nil
	}

	jobID := params.JobID
	s.entries = append(s.entries, &model.LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    params.UserID,
		JobID:     &jobID,
		EntryType: model.LedgerEntryReserve,
		Amount:    -params.Amount,
		Note:      "hold for job",
		CreatedAt: s.now(),
	})
	return true, nil
}

func (s *Store) reservationLocked(jobID string) *model.LedgerEntry {
	for _, e := range s.entries {
		if e.EntryType == model.LedgerEntryReserve && e.JobID != nil && *e.JobID == jobID {
			return e
		}
	}
	return nil
}

// Finalize retypes the job's reservation to usage and refunds the remainder.
func (s *Store) Finalize(_ context.Context, params core.FinalizeCreditsParams) error {
	if params.FinalCost < 0 {
		return model.ErrInvalidLedgerAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.reservationLocked(params.JobID)
	if res == nil {
		return nil
	}

	reserved := -res.Amount
	finalCost := min(params.FinalCost, reserved)

	res.EntryType = model.LedgerEntryUsage
	res.Amount = -finalCost
	res.Note = "final charge"

	if remainder := reserved - finalCost; remainder > 0 {
		jobID := params.JobID
		s.entries = append(s.entries, &model.LedgerEntry{
			ID:        uuid.NewString(),
			UserID:    params.UserID,
			JobID:     &jobID,
			EntryType: model.LedgerEntryRefund,
			Amount:    remainder,
			Note:      "unused reservation",
			CreatedAt: s.now(),
		})
	}
	return nil
}

// Release deletes the job's reserve entry if one exists.
func (s *Store) Release(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.entries[:0]
	for _, e := range s.entries {
		if e.EntryType == model.LedgerEntryReserve && e.JobID != nil && *e.JobID == jobID {
			continue
		}
		out = append(out, e)
	}
	s.entries = out
	return nil
}

// Purchase appends a positive entry crediting the user.
func (s *Store) Purchase(_ context.Context, params core.PurchaseCreditsParams) (*model.LedgerEntry, error) {
	if params.Amount <= 0 {
		return nil, model.ErrInvalidLedgerAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &model.LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    params.UserID,
		EntryType: model.LedgerEntryPurchase,
		Amount:    params.Amount,
		Note:      params.Note,
		CreatedAt: s.now(),
	}
	s.entries = append(s.entries, entry)
	cp := *entry
	return &cp, nil
}

// EntriesForUser returns the user's ledger entries, newest first.
func (s *Store) EntriesForUser(_ context.Context, userID string, limit int) ([]*model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if s.entries[i].UserID == userID {
			cp := *s.entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

// EntriesForJob returns ledger entries tied to a job, oldest first.
func (s *Store) EntriesForJob(_ context.Context, jobID string) ([]*model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.LedgerEntry
	for _, e := range s.entries {
		if e.JobID != nil && *e.JobID == jobID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
