package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ DiscoveryRepository = (*SQLDiscoveryRepository)(nil)

// SQLDiscoveryRepository persists discovery results, one row per source
// origin.
type SQLDiscoveryRepository struct {
	db *DB
}

func NewDiscoveryRepository(db *DB) *SQLDiscoveryRepository {
	return &SQLDiscoveryRepository{db: db}
}

// GetByOrigin returns the cache entry for an origin, or nil when none
// exists.
func (r *SQLDiscoveryRepository) GetByOrigin(origin string) (*DiscoveryCacheEntry, error) {
	var entry DiscoveryCacheEntry
	var status string

	err := r.db.QueryRow(`
		SELECT id, source_origin, source_url, candidates_json, status,
			last_error, checked_at, expires_at, created_at, updated_at
		FROM discovery_cache
		WHERE source_origin = ?
	`, origin).Scan(
		&entry.ID, &entry.SourceOrigin, &entry.SourceURL, &entry.CandidatesJSON,
		&status, &entry.LastError, &entry.CheckedAt, &entry.ExpiresAt,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	entry.Status = Status(status)
	return &entry, nil
}

// Upsert inserts or supersedes the entry for its origin. created_at is
// preserved across updates; updated_at always moves forward.
func (r *SQLDiscoveryRepository) Upsert(entry DiscoveryCacheEntry) error {
	now := time.Now().UTC()

	_, err := r.db.Exec(`
		INSERT INTO discovery_cache (
			id, source_origin, source_url, candidates_json, status,
			last_error, checked_at, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_origin) DO UPDATE SET
			source_url = excluded.source_url,
			candidates_json = excluded.candidates_json,
			status = excluded.status,
			last_error = excluded.last_error,
			checked_at = excluded.checked_at,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, entry.ID, entry.SourceOrigin, entry.SourceURL, entry.CandidatesJSON,
		string(entry.Status), entry.LastError, entry.CheckedAt, entry.ExpiresAt,
		now, now)

	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	return nil
}

// List returns the most recently checked entries.
func (r *SQLDiscoveryRepository) List(limit int) ([]DiscoveryCacheEntry, error) {
	rows, err := r.db.Query(`
		SELECT id, source_origin, source_url, candidates_json, status,
			last_error, checked_at, expires_at, created_at, updated_at
		FROM discovery_cache
		ORDER BY checked_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []DiscoveryCacheEntry
	for rows.Next() {
		var entry DiscoveryCacheEntry
		var status string
		if err := rows.Scan(
			&entry.ID, &entry.SourceOrigin, &entry.SourceURL, &entry.CandidatesJSON,
			&status, &entry.LastError, &entry.CheckedAt, &entry.ExpiresAt,
			&entry.CreatedAt, &entry.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		entry.Status = Status(status)
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (r *SQLDiscoveryRepository) Stats() (*CacheStats, error) {
	var stats CacheStats

	err := r.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'SUCCESS' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'EMPTY' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'ERROR' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN expires_at < ? THEN 1 ELSE 0 END), 0)
		FROM discovery_cache
	`, time.Now().UTC()).Scan(&stats.Total, &stats.Success, &stats.Empty, &stats.Error, &stats.Expired)

	if err != nil {
		return nil, fmt.Errorf("failed to get cache stats: %w", err)
	}

	return &stats, nil
}

func (r *SQLDiscoveryRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM discovery_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return count, nil
}
