package associate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"associateflow/stage"
	"associateflow/test/infra"
)

// TestTransition_Integration runs the transition service against a real
// PostgreSQL (DATABASE_URL or a throwaway container) and verifies row, timeline
// and outbox writes, including that rejections leave no trace.
func TestTransition_Integration(t *testing.T) {
	h := infra.NewTestHarness(t)
	pool := h.Pool()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := NewRepository(pool)
	svc := NewTransitionService(pool, repo, discardLogger())

	seed := []Record{
		{ID: "it-3", Name: "Carlos Ruiz", IdentificationCode: "456123", Stage: string(stage.DossierInProgress)},
		{ID: "it-5", Name: "Pedro Diaz", IdentificationCode: "321654", Stage: string(stage.DossierInProgress), ContributionPaid: true},
	}
	if _, err := NewImporter(repo, 2, discardLogger()).Import(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := svc.Transition(ctx, TransitionRequest{AssociateID: "it-3", Stage: string(stage.PendingLegal)})
	if err != nil {
		t.Fatalf("transition (unpaid): %v", err)
	}
	if res.Reason != ReasonPreconditionFailed {
		t.Fatalf("expected PRECONDITION_FAILED, got %+v", res)
	}

	stored, err := repo.Get(ctx, "it-3")
	if err != nil {
		t.Fatalf("get after rejection: %v", err)
	}
	if stored.Stage != string(stage.DossierInProgress) || stored.LastUpdated != nil {
		t.Fatalf("expected rejected associate to be unchanged, got %+v", stored)
	}

	res, err = svc.Transition(ctx, TransitionRequest{AssociateID: "it-5", Stage: string(stage.PendingLegal), ActorID: "op-7"})
	if err != nil {
		t.Fatalf("transition (paid): %v", err)
	}
	if !res.Accepted {
		t.Fatalf("expected accepted, got %+v", res)
	}

	stored, err = repo.Get(ctx, "it-5")
	if err != nil {
		t.Fatalf("get after acceptance: %v", err)
	}
	if stored.Stage != string(stage.PendingLegal) || stored.LastUpdated == nil {
		t.Fatalf("expected stored stage update, got %+v", stored)
	}

	events, err := repo.Timeline(ctx, "it-5")
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(events) != 1 || events[0].Seq != 1 || events[0].Type != TimelineStageChanged {
		t.Fatalf("unexpected timeline %+v", events)
	}
	var payload map[string]any
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("decode timeline payload: %v", err)
	}
	if payload["previous_stage"] != string(stage.DossierInProgress) || payload["next_stage"] != string(stage.PendingLegal) {
		t.Fatalf("unexpected timeline payload %+v", payload)
	}

	var outCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE topic = $1 AND payload->>'associate_id' = $2`, OutboxTopicStageChanged, "it-5").Scan(&outCount); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outCount != 1 {
		t.Fatalf("expected 1 outbox message, got %d", outCount)
	}

	if _, err := svc.Transition(ctx, TransitionRequest{AssociateID: "missing", Stage: string(stage.Prospect)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestTransition_ConcurrentSameAssociate fires concurrent next-stage requests
// at one associate. The row lock serialises them so the timeline stays gapless.
func TestTransition_ConcurrentSameAssociate(t *testing.T) {
	h := infra.NewTestHarness(t)
	pool := h.Pool()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := NewRepository(pool)
	svc := NewTransitionService(pool, repo, discardLogger())

	if err := repo.Create(ctx, Record{ID: "it-c", Name: "Concurrent", IdentificationCode: "1", Stage: string(stage.Prospect), ContributionPaid: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, Record{ID: "it-c", Name: "Again", Stage: string(stage.Prospect)}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Transition(ctx, TransitionRequest{AssociateID: "it-c", Stage: string(stage.DossierInProgress)})
			if err != nil {
				t.Errorf("transition: %v", err)
				return
			}
			if res.Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != workers {
		t.Fatalf("expected all lateral repeats to be accepted, got %d", accepted)
	}

	events, err := repo.Timeline(ctx, "it-c")
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(events) != workers {
		t.Fatalf("expected %d events, got %d", workers, len(events))
	}
	for i, ev := range events {
		if ev.Seq != i+1 {
			t.Fatalf("expected gapless seq, got %d at position %d", ev.Seq, i)
		}
	}

	list, _, err := NewService(repo).List(ctx, ListFilters{Stage: string(stage.DossierInProgress)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, rec := range list {
		if rec.ID == "it-c" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected it-c in filtered list")
	}
}

func TestRepositoryList_PagesWithRealTotal(t *testing.T) {
	h := infra.NewTestHarness(t)
	pool := h.Pool()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := NewRepository(pool)

	const n = 520
	records := make([]Record, 0, n+1)
	for i := 0; i < n; i++ {
		records = append(records, Record{ID: fmt.Sprintf("p-%04d", i), Name: fmt.Sprintf("Asociado %04d", i), IdentificationCode: "N/A", Stage: string(stage.Prospect)})
	}
	records = append(records, Record{ID: "other", Name: "Otro", IdentificationCode: "N/A", Stage: string(stage.ActivePortfolio)})
	if _, err := NewImporter(repo, 8, discardLogger()).Import(ctx, records); err != nil {
		t.Fatalf("seed: %v", err)
	}

	page, total, err := repo.List(ctx, ListFilters{Stage: string(stage.Prospect), Limit: 10, Offset: 510})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if total != n {
		t.Fatalf("expected total %d, got %d", n, total)
	}
	if len(page) != 10 || page[0].ID != "p-0510" || page[9].ID != "p-0519" {
		t.Fatalf("unexpected page len=%d %+v", len(page), page)
	}

	all, total, err := repo.List(ctx, ListFilters{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if total != n+1 || len(all) != n+1 {
		t.Fatalf("expected every associate, got len=%d total=%d", len(all), total)
	}

	svcPage, svcTotal, err := NewService(repo).List(ctx, ListFilters{Stage: string(stage.Prospect), Limit: 50, Offset: 500})
	if err != nil {
		t.Fatalf("service list: %v", err)
	}
	if svcTotal != n || len(svcPage) != 20 || svcPage[19].ID != "p-0519" {
		t.Fatalf("unexpected service page len=%d total=%d", len(svcPage), svcTotal)
	}
}
