// Package audit builds activity log entries and fans them out to listeners
// once they are persisted.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/starford/heirloom/internal/models"
)

// Notifier receives activities after they have been committed.
type Notifier interface {
	Notify(a models.Activity)
}

// Nop discards notifications.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(models.Activity) {}

// Multi fans out to every notifier in order.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(a models.Activity) {
	for _, n := range m {
		n.Notify(a)
	}
}

// NewActivity returns an entry with a fresh id.
func NewActivity(owner string, typ models.ActivityType, description string, meta map[string]any, at time.Time) models.Activity {
	return models.Activity{
		ID:           uuid.NewString(),
		OwnerAddress: owner,
		Type:         typ,
		Description:  description,
		Metadata:     meta,
		Timestamp:    at,
	}
}
