package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// MonitorStore persists monitor definitions and the owner index in
// Postgres. The index lives in its own table and is maintained by dual
// writes, not derived from the monitor rows.
type MonitorStore struct {
	pool dbPool
}

// NewMonitorStore constructs a MonitorStore over an existing pool.
func NewMonitorStore(pool dbPool) (*MonitorStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &MonitorStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *MonitorStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const monitorColumns = `id, url, webhook_url, check_interval_hours, notify_on, status, last_content_hash, check_count, total_cost_cents, failure_streak, owner_id, created_at, next_check_at`

// Put upserts the monitor record.
func (s *MonitorStore) Put(ctx context.Context, def webintel.MonitorDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("monitor id is required")
	}
	const query = `
INSERT INTO monitors (` + monitorColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
	url = EXCLUDED.url,
	webhook_url = EXCLUDED.webhook_url,
	check_interval_hours = EXCLUDED.check_interval_hours,
	notify_on = EXCLUDED.notify_on,
	status = EXCLUDED.status,
	last_content_hash = EXCLUDED.last_content_hash,
	check_count = EXCLUDED.check_count,
	total_cost_cents = EXCLUDED.total_cost_cents,
	failure_streak = EXCLUDED.failure_streak,
	next_check_at = EXCLUDED.next_check_at`

	if _, err := s.pool.Exec(ctx, query,
		def.ID,
		def.URL,
		def.WebhookURL,
		def.CheckIntervalHours,
		string(def.NotifyOn),
		string(def.Status),
		def.LastContentHash,
		def.CheckCount,
		def.TotalCostCents,
		def.FailureStreak,
		def.OwnerID,
		def.CreatedAt,
		def.NextCheckAt,
	); err != nil {
		return fmt.Errorf("save monitor %s: %w", def.ID, err)
	}
	return nil
}

// Get returns the monitor or webintel.ErrMonitorNotFound.
func (s *MonitorStore) Get(ctx context.Context, id string) (webintel.MonitorDefinition, error) {
	const query = `SELECT ` + monitorColumns + ` FROM monitors WHERE id = $1`
	def, err := scanMonitor(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return webintel.MonitorDefinition{}, webintel.ErrMonitorNotFound
	}
	if err != nil {
		return webintel.MonitorDefinition{}, fmt.Errorf("load monitor %s: %w", id, err)
	}
	return def, nil
}

// Delete removes the monitor row.
func (s *MonitorStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM monitors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete monitor %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return webintel.ErrMonitorNotFound
	}
	return nil
}

// AppendOwnerIndex adds the monitor id to the owner's index.
func (s *MonitorStore) AppendOwnerIndex(ctx context.Context, ownerID, monitorID string) error {
	const query = `
INSERT INTO monitor_owner_index (owner_id, monitor_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`
	if _, err := s.pool.Exec(ctx, query, ownerID, monitorID); err != nil {
		return fmt.Errorf("append owner index %s/%s: %w", ownerID, monitorID, err)
	}
	return nil
}

// RemoveOwnerIndex drops the monitor id from the owner's index.
func (s *MonitorStore) RemoveOwnerIndex(ctx context.Context, ownerID, monitorID string) error {
	const query = `DELETE FROM monitor_owner_index WHERE owner_id = $1 AND monitor_id = $2`
	if _, err := s.pool.Exec(ctx, query, ownerID, monitorID); err != nil {
		return fmt.Errorf("remove owner index %s/%s: %w", ownerID, monitorID, err)
	}
	return nil
}

// ListByOwner returns the owner's monitor ids from the index table.
func (s *MonitorStore) ListByOwner(ctx context.Context, ownerID string) ([]string, error) {
	const query = `SELECT monitor_id FROM monitor_owner_index WHERE owner_id = $1 ORDER BY monitor_id`
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owner index %s: %w", ownerID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owner index row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owner index: %w", err)
	}
	return ids, nil
}

// ListActive returns every monitor in active status, ordered by the
// next due time.
func (s *MonitorStore) ListActive(ctx context.Context) ([]webintel.MonitorDefinition, error) {
	const query = `SELECT ` + monitorColumns + ` FROM monitors WHERE status = $1 ORDER BY next_check_at`
	rows, err := s.pool.Query(ctx, query, string(webintel.MonitorActive))
	if err != nil {
		return nil, fmt.Errorf("list active monitors: %w", err)
	}
	defer rows.Close()

	var defs []webintel.MonitorDefinition
	for rows.Next() {
		def, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor row: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monitors: %w", err)
	}
	return defs, nil
}

func scanMonitor(row pgx.Row) (webintel.MonitorDefinition, error) {
	var def webintel.MonitorDefinition
	err := row.Scan(
		&def.ID,
		&def.URL,
		&def.WebhookURL,
		&def.CheckIntervalHours,
		&def.NotifyOn,
		&def.Status,
		&def.LastContentHash,
		&def.CheckCount,
		&def.TotalCostCents,
		&def.FailureStreak,
		&def.OwnerID,
		&def.CreatedAt,
		&def.NextCheckAt,
	)
	return def, err
}
