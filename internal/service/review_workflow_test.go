package service

import (
	"context"
	"errors"
	"testing"

	"payouts/internal/lifecycle"
)

func TestApprovePayout_HeldBecomesEligible(t *testing.T) {
	repo := newStubRepo()
	p := seedEligiblePayout(repo, lifecycle.StatusHeld)
	svc := &ReviewWorkflowService{Repo: repo, Notify: &stubNotifier{}}

	updated, err := svc.ApprovePayout(context.Background(), p.ID, "admin-7", "cleared manual review")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if updated.Status != lifecycle.StatusEligible {
		t.Fatalf("status=%s want eligible", updated.Status)
	}
	if updated.ReviewedBy != "admin-7" || updated.ReviewedAt == nil {
		t.Fatalf("review trail not stamped: %+v", updated)
	}
	if updated.ReviewNotes != "cleared manual review" {
		t.Fatalf("notes=%q", updated.ReviewNotes)
	}
	if updated.RequiresReview {
		t.Fatalf("requires_review still set")
	}
}

func TestApprovePayout_WrongState(t *testing.T) {
	repo := newStubRepo()
	p := seedEligiblePayout(repo, lifecycle.StatusPending)
	svc := &ReviewWorkflowService{Repo: repo}

	_, err := svc.ApprovePayout(context.Background(), p.ID, "admin-7", "")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err=%v want ErrInvalidState", err)
	}
	stored, _ := repo.GetPayoutByID(context.Background(), p.ID)
	if stored.Status != lifecycle.StatusPending {
		t.Fatalf("status mutated to %s", stored.Status)
	}
}

func TestRejectPayout_FromHeldAndEligible(t *testing.T) {
	repo := newStubRepo()
	held := seedEligiblePayout(repo, lifecycle.StatusHeld)
	eligible := seedEligiblePayout(repo, lifecycle.StatusEligible)
	svc := &ReviewWorkflowService{Repo: repo, Notify: &stubNotifier{}}

	for _, p := range []uint64{held.ID, eligible.ID} {
		updated, err := svc.RejectPayout(context.Background(), p, "admin-2", "fraud signals")
		if err != nil {
			t.Fatalf("payout %d err=%v", p, err)
		}
		if updated.Status != lifecycle.StatusRejected {
			t.Fatalf("payout %d status=%s want rejected", p, updated.Status)
		}
	}
}

func TestRejectPayout_CompletedIsImmutable(t *testing.T) {
	repo := newStubRepo()
	p := seedEligiblePayout(repo, lifecycle.StatusCompleted)
	svc := &ReviewWorkflowService{Repo: repo}

	_, err := svc.RejectPayout(context.Background(), p.ID, "admin-2", "too late")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err=%v want ErrInvalidState", err)
	}
	stored, _ := repo.GetPayoutByID(context.Background(), p.ID)
	if stored.Status != lifecycle.StatusCompleted {
		t.Fatalf("status=%s want completed unchanged", stored.Status)
	}
}

func TestReviewWorkflow_MissingPayout(t *testing.T) {
	svc := &ReviewWorkflowService{Repo: newStubRepo()}
	if _, err := svc.ApprovePayout(context.Background(), 99, "admin", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("approve err=%v want ErrNotFound", err)
	}
	if _, err := svc.RejectPayout(context.Background(), 99, "admin", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("reject err=%v want ErrNotFound", err)
	}
}
