package ports

import (
	"context"

	"github.com/inkwell/content-platform/internal/core/domain"
)

// AuditRepository persists audit trail entries.
type AuditRepository interface {
	Insert(ctx context.Context, event *domain.AuditEvent) error
}

// AuditService processes a single audit event pulled off the queue.
type AuditService interface {
	Process(ctx context.Context, event domain.AuditEvent) error
}
