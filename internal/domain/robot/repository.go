package robot

import (
	"context"
)

// Repository defines robot registry persistence. Upsert replaces an
// existing robot's entire capability map in one write; readers never see
// a partially updated entry.
type Repository interface {
	Upsert(ctx context.Context, r *Robot) error
	GetByID(ctx context.Context, robotID string) (*Robot, error)
	List(ctx context.Context) ([]*Robot, error)
	UpdateStatus(ctx context.Context, robotID string, status Status) error
}
