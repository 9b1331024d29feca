package ports

import (
	"context"

	"github.com/SakenW/transhub/internal/domain"
)

// Outbox records state-transition events for an external relay. Emission is
// write-once; at-least-once delivery is the relay's problem.
type Outbox interface {
	Emit(ctx context.Context, ev *domain.OutboxEvent) error
}
