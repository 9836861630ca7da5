package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"associateflow/associate"
	"associateflow/stage"
)

// Advancer repeatedly asks for the next stage of a random associate, falling
// back to the first stage once the terminal stage is reached.
func Advancer(ctx context.Context, svc *associate.TransitionService, repo *associate.Repository, ids []string, stop <-chan struct{}) error {
	return loop(ctx, stop, 10, 20, func() error {
		id := ids[rand.Intn(len(ids))]
		rec, err := repo.Get(ctx, id)
		if err != nil {
			return tolerate(err)
		}
		target, ok := stage.Next(rec.Stage)
		if !ok {
			target = stage.Prospect
		}
		_, err = svc.Transition(ctx, associate.TransitionRequest{AssociateID: id, Stage: string(target), ActorID: "advancer"})
		return tolerate(err)
	})
}

// Jumper requests random targets, including skips, invalid values and the
// gated legal-review stage. Most requests must be rejected.
func Jumper(ctx context.Context, svc *associate.TransitionService, ids []string, stop <-chan struct{}) error {
	targets := append(stageValues(), "Archivado", "", "PENDING_LEGAL")
	return loop(ctx, stop, 5, 15, func() error {
		id := ids[rand.Intn(len(ids))]
		target := targets[rand.Intn(len(targets))]
		_, err := svc.Transition(ctx, associate.TransitionRequest{AssociateID: id, Stage: target, ActorID: "jumper"})
		return tolerate(err)
	})
}

// Regressor moves associates backwards, which is always allowed.
func Regressor(ctx context.Context, svc *associate.TransitionService, repo *associate.Repository, ids []string, stop <-chan struct{}) error {
	return loop(ctx, stop, 30, 40, func() error {
		id := ids[rand.Intn(len(ids))]
		rec, err := repo.Get(ctx, id)
		if err != nil {
			return tolerate(err)
		}
		idx, ok := stage.IndexOf(rec.Stage)
		if !ok || idx == 0 {
			return nil
		}
		target, _ := stage.At(rand.Intn(idx))
		_, err = svc.Transition(ctx, associate.TransitionRequest{AssociateID: id, Stage: string(target), ActorID: "regressor"})
		return tolerate(err)
	})
}

// OutboxWorker consumes pending outbox messages with SKIP LOCKED and marks them processed.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	return loop(ctx, stop, 20, 30, func() error {
		_, err := pool.Exec(ctx, `
UPDATE outbox SET status = 'processed', attempts = attempts + 1
WHERE id IN (
    SELECT id FROM outbox WHERE status = 'pending'
    ORDER BY created_at LIMIT 10 FOR UPDATE SKIP LOCKED
)`)
		return tolerate(err)
	})
}

func loop(ctx context.Context, stop <-chan struct{}, minSleepMS, jitterMS int, step func() error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if err := step(); err != nil {
			return err
		}
		time.Sleep(time.Duration(minSleepMS+rand.Intn(jitterMS)) * time.Millisecond)
	}
}

// tolerate swallows errors expected under chaos (terminated backends) and
// surfaces only context cancellation.
func tolerate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, associate.ErrNotFound) {
		return fmt.Errorf("actor: seeded associate vanished: %w", err)
	}
	return nil
}

func stageValues() []string {
	out := make([]string, 0, stage.Count)
	for _, s := range stage.Ordered() {
		out = append(out, string(s))
	}
	return out
}
