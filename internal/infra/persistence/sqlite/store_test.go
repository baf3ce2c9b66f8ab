package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"buildcore/pkg/domain"
)

func TestStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildcore.db")

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var project domain.Project
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		project, err = tx.CreateProject(domain.Project{
			SubjectCore: domain.SubjectCore{Name: "Riverside", Status: domain.SubjectStatusPlanning},
			Phases: []domain.Phase{
				{ItemCore: domain.ItemCore{Name: "Groundwork", Weight: 100}},
			},
		})
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, ok := reopened.GetProject(project.ID)
	if !ok {
		t.Fatalf("project not restored from sqlite")
	}
	if got.Name != "Riverside" || len(got.Phases) != 1 {
		t.Fatalf("restored project mismatch: %+v", got)
	}
}

func TestDefaultPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open with nested dir: %v", err)
	}
	defer func() { _ = store.Close() }()
	if store.Path() != path {
		t.Fatalf("Path() = %s, want %s", store.Path(), path)
	}
}

func TestOutboxSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildcore.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		tx.AppendOutbox(domain.OutboxEntry{Topic: domain.TopicUnitMilestones, Payload: []byte(`{"threshold":50}`)})
		return nil
	})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	pending := reopened.PendingOutbox()
	if len(pending) != 1 || pending[0].Topic != domain.TopicUnitMilestones {
		t.Fatalf("pending outbox not restored: %+v", pending)
	}
}
