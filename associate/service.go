package associate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TransitionStore defines the data access required by TransitionService.
type TransitionStore interface {
	LockForUpdate(ctx context.Context, tx pgx.Tx, id string) (Record, error)
	UpdateStage(ctx context.Context, tx pgx.Tx, rec Record) error
	AppendTimeline(ctx context.Context, tx pgx.Tx, associateID, eventType string, actorID *string, payload map[string]any) error
	EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// TransitionService applies validated stage transitions to stored associates,
// capturing the timeline and outbox writes in the same transaction.
type TransitionService struct {
	pool      TxBeginner
	store     TransitionStore
	validator *Validator
	logger    *slog.Logger
}

func NewTransitionService(pool TxBeginner, store TransitionStore, logger *slog.Logger) *TransitionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransitionService{
		pool:      pool,
		store:     store,
		validator: NewValidator(),
		logger:    logger,
	}
}

// WithValidator replaces the validator, mainly to pin the clock in tests.
func (s *TransitionService) WithValidator(v *Validator) *TransitionService {
	s.validator = v
	return s
}

// Transition locks the associate, validates the requested stage and, when
// accepted, persists it. A rejected Result is returned with a nil error and
// leaves the stored associate untouched.
func (s *TransitionService) Transition(ctx context.Context, req TransitionRequest) (Result, error) {
	if req.AssociateID == "" {
		return Result{}, fmt.Errorf("associate: missing associate id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("associate: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.store.LockForUpdate(ctx, tx, req.AssociateID)
	if err != nil {
		return Result{}, err
	}

	res := s.validator.Attempt(current, req.Stage)
	if !res.Accepted {
		s.logger.InfoContext(ctx, "associate transition rejected",
			slog.String("associate_id", current.ID),
			slog.String("from", current.Stage),
			slog.String("to", req.Stage),
			slog.String("reason", string(res.Reason)),
		)
		return res, nil
	}

	if err := s.store.UpdateStage(ctx, tx, res.Record); err != nil {
		return Result{}, err
	}

	var actorPtr *string
	if req.ActorID != "" {
		actorPtr = &req.ActorID
	}

	payload := map[string]any{
		"previous_stage": current.Stage,
		"next_stage":     res.Record.Stage,
		"updated_at":     res.Record.LastUpdated,
	}
	if req.ActorID != "" {
		payload["actor_id"] = req.ActorID
	}
	if err := s.store.AppendTimeline(ctx, tx, current.ID, TimelineStageChanged, actorPtr, payload); err != nil {
		return Result{}, err
	}

	outboxPayload := map[string]any{
		"associate_id": current.ID,
		"previous":     current.Stage,
		"next":         res.Record.Stage,
	}
	if err := s.store.EnqueueOutbox(ctx, tx, OutboxTopicStageChanged, outboxPayload); err != nil {
		return Result{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("associate: commit transition: %w", err)
	}

	s.logger.InfoContext(ctx, "associate transition accepted",
		slog.String("associate_id", current.ID),
		slog.String("from", current.Stage),
		slog.String("to", res.Record.Stage),
	)
	return res, nil
}
