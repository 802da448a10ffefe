package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sensor_readings (
	id BIGSERIAL PRIMARY KEY,
	sensor_type TEXT NOT NULL,
	value DOUBLE PRECISION NOT NULL,
	unit TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	device_id TEXT NOT NULL DEFAULT '',
	timestamp TIMESTAMPTZ NOT NULL,
	metadata JSONB
)`,
	`CREATE INDEX IF NOT EXISTS sensor_readings_type_ts ON sensor_readings (sensor_type, timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS alerts (
	id BIGSERIAL PRIMARY KEY,
	alert_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	sensor_type TEXT,
	value DOUBLE PRECISION,
	threshold DOUBLE PRECISION,
	device_id TEXT,
	timestamp TIMESTAMPTZ NOT NULL,
	resolved BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_by TEXT,
	resolved_at TIMESTAMPTZ,
	metadata JSONB
)`,
	`CREATE INDEX IF NOT EXISTS alerts_unresolved ON alerts (resolved, timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS device_states (
	id BIGSERIAL PRIMARY KEY,
	device_name TEXT NOT NULL UNIQUE,
	device_type TEXT NOT NULL,
	state TEXT NOT NULL,
	parameters JSONB,
	last_updated TIMESTAMPTZ NOT NULL,
	updated_by TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS device_history (
	id BIGSERIAL PRIMARY KEY,
	device_name TEXT NOT NULL,
	device_type TEXT NOT NULL,
	previous_state TEXT,
	new_state TEXT NOT NULL,
	parameters JSONB,
	changed_by TEXT NOT NULL DEFAULT '',
	reason TEXT,
	timestamp TIMESTAMPTZ NOT NULL
)`,
}

// Postgres is the relational store, database/sql over the pgx driver.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres opens and pings the database.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// EnsureSchema creates the tables when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) SaveReading(ctx context.Context, r model.Reading) error {
	meta, err := jsonParam(r.Metadata)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
INSERT INTO sensor_readings (sensor_type, value, unit, location, device_id, timestamp, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`,
		r.SensorType, r.Value, r.Unit, r.Location, r.DeviceID, r.Timestamp.UTC(), meta)
	return err
}

func (p *Postgres) SaveAlert(ctx context.Context, a model.Alert) (int64, error) {
	meta, err := jsonParam(a.Metadata)
	if err != nil {
		return 0, err
	}
	var id int64
	err = p.db.QueryRowContext(ctx, `
INSERT INTO alerts (alert_type, severity, title, message, sensor_type, value, threshold, device_id, timestamp, metadata)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, $10::jsonb)
RETURNING id`,
		a.AlertType, string(a.Severity), a.Title, a.Message, a.SensorType,
		a.Value, a.Threshold, a.DeviceID, a.Timestamp.UTC(), meta).Scan(&id)
	return id, err
}

func (p *Postgres) UpsertDeviceState(ctx context.Context, s model.DeviceState) error {
	params, err := jsonParam(s.Parameters)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
INSERT INTO device_states (device_name, device_type, state, parameters, last_updated, updated_by)
VALUES ($1, $2, $3, $4::jsonb, $5, $6)
ON CONFLICT (device_name) DO UPDATE SET
	device_type = EXCLUDED.device_type,
	state = EXCLUDED.state,
	parameters = EXCLUDED.parameters,
	last_updated = EXCLUDED.last_updated,
	updated_by = EXCLUDED.updated_by`,
		s.DeviceName, s.DeviceType, s.State, params, s.LastUpdated.UTC(), s.UpdatedBy)
	return err
}

func (p *Postgres) AppendDeviceHistory(ctx context.Context, h model.DeviceHistory) error {
	params, err := jsonParam(h.Parameters)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
INSERT INTO device_history (device_name, device_type, previous_state, new_state, parameters, changed_by, reason, timestamp)
VALUES ($1, $2, NULLIF($3, ''), $4, $5::jsonb, $6, NULLIF($7, ''), $8)`,
		h.DeviceName, h.DeviceType, h.PreviousState, h.NewState, params, h.ChangedBy, h.Reason, h.Timestamp.UTC())
	return err
}

const deviceStateColumns = `device_name, device_type, state, parameters, last_updated, updated_by`

func (p *Postgres) GetDeviceState(ctx context.Context, deviceName string) (model.DeviceState, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+deviceStateColumns+` FROM device_states WHERE device_name = $1`, deviceName)
	s, err := scanDeviceState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DeviceState{}, ErrNotFound
	}
	return s, err
}

func (p *Postgres) ListDeviceStates(ctx context.Context) ([]model.DeviceState, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+deviceStateColumns+` FROM device_states ORDER BY device_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.DeviceState{}
	for rows.Next() {
		s, err := scanDeviceState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeviceState(row scanner) (model.DeviceState, error) {
	var s model.DeviceState
	var params []byte
	if err := row.Scan(&s.DeviceName, &s.DeviceType, &s.State, &params, &s.LastUpdated, &s.UpdatedBy); err != nil {
		return model.DeviceState{}, err
	}
	s.LastUpdated = s.LastUpdated.UTC()
	if len(params) > 0 {
		if err := json.Unmarshal(params, &s.Parameters); err != nil {
			return model.DeviceState{}, fmt.Errorf("postgres: device parameters: %w", err)
		}
	}
	return s, nil
}

func (p *Postgres) UnresolvedAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	rows, err := p.db.QueryContext(ctx, `
SELECT id, alert_type, severity, title, message, sensor_type, value, threshold, device_id, timestamp, metadata
FROM alerts
WHERE resolved = FALSE
ORDER BY timestamp DESC, id DESC
LIMIT $1`, alertLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Alert{}
	for rows.Next() {
		var (
			a                  model.Alert
			severity           string
			sensorType, device sql.NullString
			value, threshold   sql.NullFloat64
			meta               []byte
		)
		if err := rows.Scan(&a.ID, &a.AlertType, &severity, &a.Title, &a.Message,
			&sensorType, &value, &threshold, &device, &a.Timestamp, &meta); err != nil {
			return nil, err
		}
		a.Severity = entities.ParseSeverity(severity)
		a.SensorType = sensorType.String
		a.DeviceID = device.String
		a.Timestamp = a.Timestamp.UTC()
		if value.Valid {
			v := value.Float64
			a.Value = &v
		}
		if threshold.Valid {
			t := threshold.Float64
			a.Threshold = &t
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Metadata); err != nil {
				return nil, fmt.Errorf("postgres: alert metadata: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) ResolveAlert(ctx context.Context, id int64, resolvedBy string) error {
	res, err := p.db.ExecContext(ctx, `
UPDATE alerts SET resolved = TRUE, resolved_by = $2, resolved_at = $3
WHERE id = $1`, id, resolvedBy, time.Now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// jsonParam encodes a map for a JSONB column; nil stays NULL.
func jsonParam(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode json: %w", err)
	}
	return string(b), nil
}
