package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tachyonlabs/modelgate/models"
)

// AuditRepository persists audit events
type AuditRepository interface {
	// Insert stores a single audit event
	Insert(ctx context.Context, event *models.AuditEvent) error

	// GetByID retrieves an audit event by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditEvent, error)

	// GetByKind retrieves recent events of a given kind, newest first
	GetByKind(ctx context.Context, kind models.AuditKind, limit, offset int) ([]*models.AuditEvent, error)

	// GetByDateRange retrieves events within [start, end), newest first
	GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.AuditEvent, error)
}
