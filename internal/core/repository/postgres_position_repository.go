package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fleettrack/internal/core/model"
)

// PositionSchema creates the table PostgresPositionRepository writes to.
const PositionSchema = `CREATE TABLE IF NOT EXISTS positions (
	id          UUID PRIMARY KEY,
	vehicle_id  TEXT NOT NULL,
	device_id   TEXT NOT NULL,
	ts          TIMESTAMPTZ NOT NULL,
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	speed       DOUBLE PRECISION NOT NULL,
	course      DOUBLE PRECISION NOT NULL,
	satellites  INTEGER NOT NULL,
	valid       BOOLEAN NOT NULL,
	protocol    TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS positions_vehicle_ts ON positions (vehicle_id, ts);`

const positionColumns = `id, vehicle_id, device_id, ts, latitude, longitude, speed, course, satellites, valid, protocol, received_at`

// PostgresPositionRepository keeps the fix history in Postgres through the
// pgx database/sql driver.
type PostgresPositionRepository struct {
	db *sql.DB
}

var _ PositionRepository = (*PostgresPositionRepository)(nil)

func NewPostgresPositionRepository(db *sql.DB) *PostgresPositionRepository {
	return &PostgresPositionRepository{db: db}
}

func (r *PostgresPositionRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, PositionSchema)
	return err
}

func (r *PostgresPositionRepository) Insert(ctx context.Context, p *model.Position) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO positions (`+positionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.VehicleID, p.DeviceID, p.Timestamp, p.Latitude, p.Longitude,
		p.Speed, p.Course, p.Satellites, p.Valid, p.Protocol, p.ReceivedAt,
	)
	return err
}

func (r *PostgresPositionRepository) QueryRange(ctx context.Context, vehicleID string, from, to time.Time) ([]*model.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE vehicle_id = $1 AND ts >= $2 AND ts <= $3 ORDER BY ts ASC`,
		vehicleID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []*model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (r *PostgresPositionRepository) FindLatest(ctx context.Context, vehicleID string) (*model.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE vehicle_id = $1 ORDER BY ts DESC LIMIT 1`,
		vehicleID,
	)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(s scanner) (*model.Position, error) {
	var p model.Position
	err := s.Scan(&p.ID, &p.VehicleID, &p.DeviceID, &p.Timestamp, &p.Latitude, &p.Longitude,
		&p.Speed, &p.Course, &p.Satellites, &p.Valid, &p.Protocol, &p.ReceivedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
