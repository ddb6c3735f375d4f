package store

import (
	"context"
	"time"

	"github.com/starford/heirloom/internal/apperr"
	"github.com/starford/heirloom/internal/models"
)

// ErrStale is returned when a plan changed between read and write inside a
// transaction. It matches apperr.ErrConflict and is safe to retry.
var ErrStale = apperr.New(apperr.ErrConflict, "plan changed concurrently")

// CheckInFunc derives the check-in and audit entries from the plan as it is
// persisted inside the write transaction. It must not touch the store.
type CheckInFunc func(p *models.Plan) (models.CheckIn, models.Activity, error)

// PlanStore defines the persistence operations the services depend on.
// Consumers should depend on this interface rather than the concrete *DB type.
type PlanStore interface {
	CreatePlan(ctx context.Context, p *models.Plan, created models.Activity) error
	GetPlan(ctx context.Context, owner string) (*models.Plan, error)
	FindPlanByOwnerEmail(ctx context.Context, email string) (*models.Plan, error)
	ListUnclaimed(ctx context.Context) ([]*models.Plan, error)
	UpdatePlan(ctx context.Context, p *models.Plan, updated models.Activity) error
	RecordCheckIn(ctx context.Context, owner string, fn CheckInFunc) (*models.Plan, error)
	MarkClaimInitiated(ctx context.Context, owner string, claimed models.Activity) (bool, error)
	ResolveInheritor(ctx context.Context, owner string, index int, address string, at time.Time) error
	AppendActivity(ctx context.Context, a models.Activity) error
	ListActivities(ctx context.Context, owner string, limit int) ([]models.Activity, error)
	ListCheckIns(ctx context.Context, owner string, limit int) ([]models.CheckIn, error)
	Ping() error
	Close() error
}

// Verify *DB satisfies PlanStore at compile time.
var _ PlanStore = (*DB)(nil)
