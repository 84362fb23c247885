package generation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tamoray/tamoray-api/internal/ledger"
	"github.com/tamoray/tamoray-api/internal/plan"
)

// Service coordinates a generation call: debit first, render, journal the
// history row, and credit the debit back when the renderer fails so the user
// only pays for delivered work.
type Service struct {
	renderer Renderer
	ledger   ledger.Store
	history  Store
	catalog  *plan.Catalog
	cost     int64
	logger   *log.Logger
}

// NewService constructs a Service. costPerThumbnail is the token price of a
// single image.
func NewService(renderer Renderer, ledgerStore ledger.Store, history Store, catalog *plan.Catalog, costPerThumbnail int64) (*Service, error) {
	if renderer == nil {
		return nil, fmt.Errorf("generation service requires a renderer")
	}
	if ledgerStore == nil {
		return nil, fmt.Errorf("generation service requires a ledger store")
	}
	if history == nil {
		return nil, fmt.Errorf("generation service requires a history store")
	}
	if catalog == nil {
		catalog = plan.Default()
	}
	if costPerThumbnail <= 0 {
		return nil, fmt.Errorf("cost per thumbnail must be positive, got %d", costPerThumbnail)
	}
	return &Service{
		renderer: renderer,
		ledger:   ledgerStore,
		history:  history,
		catalog:  catalog,
		cost:     costPerThumbnail,
	}, nil
}

// SetLogger attaches an optional logger for non-fatal pipeline events.
func (s *Service) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Cost returns the token price for count thumbnails.
func (s *Service) Cost(count int) int64 {
	return s.cost * int64(count)
}

// Generate runs the pipeline for the authenticated user and returns the
// history record plus the balance left after the charge.
func (s *Service) Generate(ctx context.Context, userID string, req Request) (*Record, int64, error) {
	if req.Prompt == "" {
		return nil, 0, ErrEmptyPrompt
	}
	if req.Count <= 0 {
		req.Count = 1
	}

	account, err := s.ledger.Find(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	tier, ok := s.catalog.Tier(account.Plan)
	if !ok {
		return nil, 0, fmt.Errorf("no catalog entry for plan %q", account.Plan)
	}
	if req.Count > tier.MaxBatch {
		return nil, 0, fmt.Errorf("%w: requested %d, plan %s allows %d", ErrBatchTooLarge, req.Count, account.Plan, tier.MaxBatch)
	}

	id := uuid.NewString()
	cost := s.Cost(req.Count)
	balance, err := s.ledger.Debit(ctx, userID, cost, "thumbnail generation "+id)
	if err != nil {
		return nil, 0, err
	}

	urls, err := s.renderer.Render(ctx, req)
	if err != nil {
		// Refund outside the request's cancellation scope: the debit has
		// committed, so the compensating credit must land even when the
		// caller has gone away.
		refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if restored, rerr := s.ledger.Credit(refundCtx, userID, cost, "refund: generation "+id+" failed"); rerr != nil {
			s.logf("refund failed user=%s generation=%s amount=%d err=%v", userID, id, cost, rerr)
		} else {
			balance = restored
		}
		return nil, balance, fmt.Errorf("render thumbnails: %w", err)
	}

	rec := Record{
		ID:            id,
		UserID:        userID,
		Prompt:        req.Prompt,
		Style:         req.Style,
		Count:         req.Count,
		TokensCharged: cost,
		URLs:          urls,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.history.Record(ctx, rec); err != nil {
		// The work was delivered and paid for; a lost history row is not
		// worth failing the request over.
		s.logf("record generation history user=%s generation=%s err=%v", userID, id, err)
	}
	return &rec, balance, nil
}

// History returns the user's most recent generations, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Record, error) {
	return s.history.ListRecent(ctx, userID, limit)
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
