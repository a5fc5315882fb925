package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/inkwell/content-platform/internal/core/domain"
	"github.com/inkwell/content-platform/internal/core/ports"
)

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService returns an AuditService that persists events to the
// audit repository.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: log}
}

// Process persists a single audit event pulled off the queue.
func (s *auditService) Process(ctx context.Context, event domain.AuditEvent) error {
	if err := s.repo.Insert(ctx, &event); err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}

	s.log.Debug().
		Str("user_id", event.UserID).
		Str("action", string(event.Action)).
		Msg("audit event recorded")
	return nil
}
