package associate

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"associateflow/stage"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func fixedValidator() *Validator {
	return NewValidator().WithClock(func() time.Time { return fixedNow })
}

func paidRecord(s stage.Stage) Record {
	return Record{ID: "a-1", Name: "Juan Perez", IdentificationCode: "123456", Stage: string(s), ContributionPaid: true}
}

func TestAttempt_NextStageAccepted(t *testing.T) {
	v := fixedValidator()
	ordered := stage.Ordered()

	for i := 0; i < len(ordered)-1; i++ {
		rec := paidRecord(ordered[i])
		target := ordered[i+1]

		res := v.Attempt(rec, string(target))
		if !res.Accepted {
			t.Fatalf("%s -> %s: expected accepted, got %s: %s", ordered[i], target, res.Reason, res.Message)
		}
		if res.Record.Stage != string(target) {
			t.Fatalf("expected stage %q got %q", target, res.Record.Stage)
		}
		if res.Record.LastUpdated == nil || !res.Record.LastUpdated.Equal(fixedNow) {
			t.Fatalf("expected timestamp %v got %v", fixedNow, res.Record.LastUpdated)
		}
		if res.Message != MessageAccepted {
			t.Fatalf("unexpected message %q", res.Message)
		}
	}
}

func TestAttempt_SkipAheadRejected(t *testing.T) {
	v := fixedValidator()
	ordered := stage.Ordered()

	for i := range ordered {
		for j := i + 2; j < len(ordered); j++ {
			res := v.Attempt(paidRecord(ordered[i]), string(ordered[j]))
			if res.Accepted || res.Reason != ReasonIllegalSkip {
				t.Fatalf("%s -> %s: expected ILLEGAL_SKIP, got accepted=%v reason=%s", ordered[i], ordered[j], res.Accepted, res.Reason)
			}
			if !strings.Contains(res.Message, string(ordered[i])) || !strings.Contains(res.Message, string(ordered[j])) {
				t.Fatalf("expected message to name both stages, got %q", res.Message)
			}
		}
	}
}

func TestAttempt_BackwardAndLateralAccepted(t *testing.T) {
	v := fixedValidator()
	ordered := stage.Ordered()

	for i := range ordered {
		for j := 0; j <= i; j++ {
			res := v.Attempt(paidRecord(ordered[i]), string(ordered[j]))
			if !res.Accepted {
				t.Fatalf("%s -> %s: expected accepted, got %s", ordered[i], ordered[j], res.Reason)
			}
		}
	}
}

func TestAttempt_InvalidStageRejected(t *testing.T) {
	v := fixedValidator()
	currents := append([]string{"Legacy", ""}, stageStrings()...)

	for _, cur := range currents {
		for _, requested := range []string{"", "Archivado", "prospecto", "PENDING_LEGAL"} {
			res := v.Attempt(Record{ID: "x", Name: "X", Stage: cur}, requested)
			if res.Accepted || res.Reason != ReasonInvalidStage {
				t.Fatalf("current %q requested %q: expected INVALID_STAGE, got accepted=%v reason=%s", cur, requested, res.Accepted, res.Reason)
			}
			if !strings.Contains(res.Message, "'"+requested+"'") {
				t.Fatalf("expected message to name %q, got %q", requested, res.Message)
			}
		}
	}
}

func TestAttempt_InvalidStageWinsOverPrecondition(t *testing.T) {
	res := fixedValidator().Attempt(Record{Stage: string(stage.Prospect)}, "Nope")
	if res.Reason != ReasonInvalidStage {
		t.Fatalf("expected INVALID_STAGE, got %s", res.Reason)
	}
}

func TestAttempt_SkipWinsOverPrecondition(t *testing.T) {
	rec := Record{ID: "a-1", Name: "A", Stage: string(stage.Prospect)}
	res := fixedValidator().Attempt(rec, string(stage.PendingLegal))
	if res.Reason != ReasonIllegalSkip {
		t.Fatalf("expected ILLEGAL_SKIP before precondition, got %s", res.Reason)
	}
}

func TestAttempt_LegalReviewRequiresContribution(t *testing.T) {
	v := fixedValidator()
	rec := Record{ID: "3", Name: "Carlos Ruiz", IdentificationCode: "456123", Stage: "Expediente en Construcción"}

	res := v.Attempt(rec, "Pendiente Jurídico")
	if res.Accepted || res.Reason != ReasonPreconditionFailed {
		t.Fatalf("expected PRECONDITION_FAILED, got accepted=%v reason=%s", res.Accepted, res.Reason)
	}
	if res.Message != MessageContributionUnpaid {
		t.Fatalf("unexpected message %q", res.Message)
	}

	rec.ContributionPaid = true
	res = v.Attempt(rec, "Pendiente Jurídico")
	if !res.Accepted {
		t.Fatalf("expected accepted, got %s: %s", res.Reason, res.Message)
	}
	if res.Record.Stage != "Pendiente Jurídico" || res.Record.LastUpdated == nil {
		t.Fatalf("unexpected updated record %+v", res.Record)
	}
}

func TestAttempt_LegalReviewFromLaterStageStillGated(t *testing.T) {
	rec := Record{ID: "4", Name: "Ana Lopez", Stage: string(stage.ActivePortfolio)}
	res := fixedValidator().Attempt(rec, string(stage.PendingLegal))
	if res.Reason != ReasonPreconditionFailed {
		t.Fatalf("expected PRECONDITION_FAILED on backward move, got %s", res.Reason)
	}
}

func TestAttempt_UnknownCurrentStageSkipsOrdering(t *testing.T) {
	v := fixedValidator()

	res := v.Attempt(Record{ID: "9", Name: "Legacy", Stage: "Legacy"}, "Expediente en Construcción")
	if !res.Accepted {
		t.Fatalf("expected accepted, got %s", res.Reason)
	}

	res = v.Attempt(Record{ID: "9", Name: "Legacy", Stage: "Legacy"}, string(stage.Disbursed))
	if !res.Accepted {
		t.Fatalf("expected forward jump from unknown stage to be accepted, got %s", res.Reason)
	}

	res = v.Attempt(Record{ID: "9", Name: "Legacy", Stage: "Legacy"}, string(stage.PendingLegal))
	if res.Reason != ReasonPreconditionFailed {
		t.Fatalf("expected precondition to still apply, got %s", res.Reason)
	}
}

func TestAttempt_ProspectToActivePortfolioRejected(t *testing.T) {
	res := fixedValidator().Attempt(Record{ID: "1", Name: "Juan Perez", Stage: "Prospecto"}, "Cartera Activa")
	if res.Reason != ReasonIllegalSkip {
		t.Fatalf("expected ILLEGAL_SKIP, got %s", res.Reason)
	}
}

func TestAttempt_DoesNotMutateInput(t *testing.T) {
	earlier := fixedNow.Add(-time.Hour)
	rec := Record{ID: "5", Name: "Pedro Diaz", Stage: string(stage.DossierInProgress), ContributionPaid: true, LastUpdated: &earlier}
	before := rec

	res := fixedValidator().Attempt(rec, string(stage.PendingLegal))
	if !res.Accepted {
		t.Fatalf("expected accepted, got %s", res.Reason)
	}
	if rec != before || !rec.LastUpdated.Equal(earlier) {
		t.Fatalf("input record was mutated: %+v", rec)
	}
	if res.Record.ID != rec.ID || res.Record.Name != rec.Name || res.Record.ContributionPaid != rec.ContributionPaid {
		t.Fatalf("identity fields changed: %+v", res.Record)
	}
}

func TestAttempt_RejectionsAreRepeatable(t *testing.T) {
	v := NewValidator()
	rec := Record{ID: "1", Name: "A", Stage: string(stage.Prospect)}

	first := v.Attempt(rec, string(stage.Disbursed))
	for i := 0; i < 5; i++ {
		again := v.Attempt(rec, string(stage.Disbursed))
		if again != first {
			t.Fatalf("expected identical rejection, got %+v vs %+v", again, first)
		}
	}
}

func TestAttempt_ConcurrentCallers(t *testing.T) {
	var wg sync.WaitGroup
	rec := paidRecord(stage.DossierInProgress)

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := AttemptTransition(rec, string(stage.PendingLegal)); !res.Accepted {
				t.Errorf("expected accepted, got %s", res.Reason)
			}
		}()
	}
	wg.Wait()
}

func TestWithClock_NilFallsBackToWallClock(t *testing.T) {
	before := time.Now().UTC()
	res := NewValidator().WithClock(nil).Attempt(paidRecord(stage.Prospect), string(stage.DossierInProgress))
	if !res.Accepted {
		t.Fatalf("expected accepted, got %s", res.Reason)
	}
	if res.Record.LastUpdated == nil || res.Record.LastUpdated.Before(before) {
		t.Fatalf("expected wall clock timestamp, got %v", res.Record.LastUpdated)
	}
}

func TestResultErr(t *testing.T) {
	if err := (Result{Accepted: true}).Err(); err != nil {
		t.Fatalf("expected nil error for accepted result, got %v", err)
	}

	cases := map[Reason]error{
		ReasonInvalidStage:       ErrInvalidStage,
		ReasonIllegalSkip:        ErrIllegalSkip,
		ReasonPreconditionFailed: ErrPreconditionFailed,
	}
	for reason, sentinel := range cases {
		err := Result{Reason: reason, Message: "m"}.Err()
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected %v to match %v", err, sentinel)
		}
		var rej *RejectionError
		if !errors.As(err, &rej) || rej.Reason != reason {
			t.Fatalf("expected RejectionError with reason %s, got %v", reason, err)
		}
	}
}

func stageStrings() []string {
	out := make([]string, 0, stage.Count)
	for _, s := range stage.Ordered() {
		out = append(out, string(s))
	}
	return out
}
