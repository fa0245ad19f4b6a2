// Package statusstore persists polled machine statuses to sqlite so
// runs leave a queryable history behind.
package statusstore

import (
	"context"
	"database/sql"
	"time"
	"washmon-backend/lib/platforms/pay2wash"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) (Store, error) {
	_, err := database.Exec(Schema)
	if err != nil {
		return Store{}, err
	}
	return Store{db: database}, nil
}

func Open(path string) (Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return Store{}, err
	}
	return NewStore(database)
}

func (s Store) Close() error {
	return s.db.Close()
}

func (s Store) Push(
	ctx context.Context,
	runID, location string,
	observedAt time.Time,
	statuses []pay2wash.MachineStatus,
) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, status := range statuses {
		var remaining sql.NullInt64
		if status.Raw.RemainingTime != nil {
			remaining = sql.NullInt64{
				Int64: int64(status.Raw.RemainingTime.Seconds()),
				Valid: true,
			}
		}
		var offline sql.NullInt64
		if status.Raw.GatewayOffline != nil {
			offline = sql.NullInt64{
				Int64: int64(*status.Raw.GatewayOffline),
				Valid: true,
			}
		}

		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO observations
				(run_id, location, observed_at, machine_id, machine_name, machine_type,
				 state, remaining_seconds, gateway_offline)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, location, observedAt.Unix(),
			status.ID, status.Name, status.Type, string(status.State),
			remaining, offline,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

type Observation struct {
	RunID            string
	Location         string
	ObservedAt       time.Time
	MachineID        string
	MachineName      string
	MachineType      string
	State            pay2wash.MachineState
	RemainingSeconds sql.NullInt64
	GatewayOffline   sql.NullInt64
}

// Recent returns up to limit observations for a location, newest first.
func (s Store) Recent(ctx context.Context, location string, limit int) ([]Observation, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, location, observed_at, machine_id, machine_name, machine_type,
			state, remaining_seconds, gateway_offline
		 FROM observations
		 WHERE location = ?
		 ORDER BY observed_at DESC, id DESC
		 LIMIT ?`,
		location, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var obs Observation
		var observedAt int64
		var state string
		err = rows.Scan(
			&obs.RunID, &obs.Location, &observedAt,
			&obs.MachineID, &obs.MachineName, &obs.MachineType,
			&state, &obs.RemainingSeconds, &obs.GatewayOffline,
		)
		if err != nil {
			return nil, err
		}
		obs.ObservedAt = time.Unix(observedAt, 0)
		obs.State = pay2wash.MachineState(state)
		out = append(out, obs)
	}
	return out, rows.Err()
}
