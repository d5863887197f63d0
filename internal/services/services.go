// Package services holds the permission-checked chat operations.
package services

import (
	"context"

	"go.opentelemetry.io/otel"

	"microchat/internal/events"
	"microchat/internal/models"
	"microchat/internal/repositories"
)

var tracer = otel.Tracer("microchat/services")

// Emitter receives the events of successful mutations.
type Emitter interface {
	Emit(evt events.Event)
}

// recipients returns the users an event about chat is routed to: both
// sides of a dialog or every active member of a conference.
func recipients(ctx context.Context, conferences repositories.ConferenceRepository, chat models.Chat) ([]int64, error) {
	switch c := chat.(type) {
	case *models.Dialog:
		return []int64{c.Actor.ID, c.Related.ID}, nil
	case *models.ConferenceParticipation:
		return conferences.MemberIDs(ctx, c.Conference)
	}
	return nil, nil
}
