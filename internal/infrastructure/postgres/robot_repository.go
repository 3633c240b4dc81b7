package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/delegation-hub/delegation-hub/internal/domain/robot"
)

// RobotRepository implements robot.Repository. Capabilities are stored as
// JSONB so an upsert replaces the whole map atomically.
type RobotRepository struct {
	pool *pgxpool.Pool
}

func NewRobotRepository(pool *pgxpool.Pool) *RobotRepository {
	return &RobotRepository{pool: pool}
}

func (r *RobotRepository) Upsert(ctx context.Context, rb *robot.Robot) error {
	caps, err := json.Marshal(rb.Capabilities)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO robots (robot_id, capabilities, token_hash, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (robot_id) DO UPDATE SET
			capabilities=EXCLUDED.capabilities,
			token_hash=EXCLUDED.token_hash,
			status=EXCLUDED.status,
			updated_at=EXCLUDED.updated_at
	`, rb.RobotID, caps, rb.TokenHash, rb.Status, rb.CreatedAt, rb.UpdatedAt)
	return err
}

func (r *RobotRepository) GetByID(ctx context.Context, robotID string) (*robot.Robot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT robot_id, capabilities, token_hash, status, created_at, updated_at
		FROM robots WHERE robot_id=$1
	`, robotID)
	return scanRobot(row)
}

func (r *RobotRepository) List(ctx context.Context) ([]*robot.Robot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT robot_id, capabilities, token_hash, status, created_at, updated_at
		FROM robots ORDER BY robot_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var robots []*robot.Robot
	for rows.Next() {
		rb, err := scanRobot(rows)
		if err != nil {
			return nil, err
		}
		robots = append(robots, rb)
	}
	return robots, rows.Err()
}

func (r *RobotRepository) UpdateStatus(ctx context.Context, robotID string, status robot.Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE robots SET status=$1, updated_at=NOW() WHERE robot_id=$2
	`, status, robotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return robot.ErrUnknownRobot
	}
	return nil
}

func scanRobot(row pgx.Row) (*robot.Robot, error) {
	var rb robot.Robot
	var caps []byte
	if err := row.Scan(&rb.RobotID, &caps, &rb.TokenHash, &rb.Status, &rb.CreatedAt, &rb.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(caps, &rb.Capabilities); err != nil {
		return nil, err
	}
	return &rb, nil
}
