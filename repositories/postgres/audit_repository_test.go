package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tachyonlabs/modelgate/models"
)

func newMockRepo(t *testing.T) (*AuditRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	db := &DB{DB: mockDB, logger: zap.NewNop()}
	return &AuditRepository{db: db, logger: zap.NewNop()}, mock
}

func TestAuditRepository_Insert(t *testing.T) {
	repo, mock := newMockRepo(t)

	event := models.NewAuditEvent(models.AuditKindProviderFailure, "provider=openai error=timeout")

	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(event.ID, event.Kind, event.Detail, event.Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Insert(context.Background(), event); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAuditRepository_InsertError(t *testing.T) {
	repo, mock := newMockRepo(t)

	event := models.NewAuditEvent(models.AuditKindFallback, "provider=anthropic")

	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnError(errors.New("connection reset"))

	if err := repo.Insert(context.Background(), event); err == nil {
		t.Error("Insert() expected error")
	}
}

func TestAuditRepository_GetByID(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	ts := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "kind", "detail", "timestamp"}).
		AddRow(id.String(), "circuit_open", "provider=openai failures=3", ts)

	mock.ExpectQuery("SELECT id, kind, detail, timestamp").
		WithArgs(id).
		WillReturnRows(rows)

	event, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if event.Kind != models.AuditKindCircuitOpen {
		t.Errorf("Kind = %q, want circuit_open", event.Kind)
	}
	if event.Detail != "provider=openai failures=3" {
		t.Errorf("Detail = %q", event.Detail)
	}
}

func TestAuditRepository_GetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	mock.ExpectQuery("SELECT id, kind, detail, timestamp").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "detail", "timestamp"}))

	_, err := repo.GetByID(context.Background(), id)
	if !errors.Is(err, ErrAuditEventNotFound) {
		t.Errorf("error = %v, want ErrAuditEventNotFound", err)
	}
}

func TestAuditRepository_GetByKind(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"id", "kind", "detail", "timestamp"}).
		AddRow(uuid.NewString(), "fallback", "provider=openai", time.Now()).
		AddRow(uuid.NewString(), "fallback", "provider=anthropic", time.Now())

	mock.ExpectQuery("SELECT id, kind, detail, timestamp").
		WithArgs(models.AuditKindFallback, 10, 0).
		WillReturnRows(rows)

	events, err := repo.GetByKind(context.Background(), models.AuditKindFallback, 10, 0)
	if err != nil {
		t.Fatalf("GetByKind() error = %v", err)
	}
	if len(events) != 2 {
		t.Errorf("len(events) = %d, want 2", len(events))
	}
}

func TestAuditRepository_GetByDateRange(t *testing.T) {
	repo, mock := newMockRepo(t)

	start := time.Now().Add(-time.Hour)
	end := time.Now()

	rows := sqlmock.NewRows([]string{"id", "kind", "detail", "timestamp"}).
		AddRow(uuid.NewString(), "provider_success", "provider=local", end.Add(-time.Minute))

	mock.ExpectQuery("SELECT id, kind, detail, timestamp").
		WithArgs(start, end, 50, 0).
		WillReturnRows(rows)

	events, err := repo.GetByDateRange(context.Background(), start, end, 50, 0)
	if err != nil {
		t.Fatalf("GetByDateRange() error = %v", err)
	}
	if len(events) != 1 {
		t.Errorf("len(events) = %d, want 1", len(events))
	}
}
