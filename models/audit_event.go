package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditKind identifies the kind of audit event
type AuditKind string

const (
	AuditKindProviderAttempt   AuditKind = "provider_attempt"
	AuditKindProviderSuccess   AuditKind = "provider_success"
	AuditKindProviderFailure   AuditKind = "provider_failure"
	AuditKindProviderSkipped   AuditKind = "provider_skipped"
	AuditKindFallback          AuditKind = "fallback"
	AuditKindCircuitOpen       AuditKind = "circuit_open"
	AuditKindStreamingDegraded AuditKind = "streaming_degraded"
	AuditKindAllUnavailable    AuditKind = "all_providers_unavailable"
	AuditKindProviderSwitched  AuditKind = "provider_switched"
)

// AuditEvent is a single recorded event from the access layer
type AuditEvent struct {
	ID        uuid.UUID `json:"id"`
	Kind      AuditKind `json:"kind"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAuditEvent creates an audit event stamped with a fresh ID and the current time
func NewAuditEvent(kind AuditKind, detail string) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New(),
		Kind:      kind,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
}
