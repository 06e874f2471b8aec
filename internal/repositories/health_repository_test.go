package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
)

func TestDependencyHealthRepositoryCollectSuccess(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "redis", Check: func(context.Context) error { return nil }},
	}, WithDependencyClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %s", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(report.Checks))
	}
	if report.GeneratedAt != now {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestDependencyHealthRepositoryCollectDegraded(t *testing.T) {
	boom := errors.New("boom")
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return boom }},
		{Name: "redis", Check: func(context.Context) error { return nil }},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected status degraded, got %s", report.Status)
	}
	if got := report.Checks["firestore"].Error; got != boom.Error() {
		t.Fatalf("expected error %q, got %q", boom.Error(), got)
	}
}

func TestDependencyHealthRepositoryCollectTimeout(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 5 * time.Millisecond,
			Check: func(ctx context.Context) error {
				select {
				case <-time.After(200 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected status error, got %s", report.Status)
	}
	if detail := report.Checks["firestore"].Detail; detail != "timeout" {
		t.Fatalf("expected detail timeout, got %s", detail)
	}
}

func TestNewDependencyHealthRepositoryRejectsIncompleteChecks(t *testing.T) {
	if _, err := NewDependencyHealthRepository(nil); err == nil {
		t.Fatalf("expected error for empty check set")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: "firestore"}}); err == nil {
		t.Fatalf("expected error for missing check function")
	}
}
