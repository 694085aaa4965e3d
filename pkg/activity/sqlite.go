package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists the log in a SQLite database so audit history
// survives process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// activities table exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity database: %w", err)
	}
	store, err := NewSQLiteStoreWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStoreWithDB wraps an existing connection. Used by tests.
func NewSQLiteStoreWithDB(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	store := &SQLiteStore{db: db}
	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure activities table: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		session_id TEXT,
		action TEXT NOT NULL,
		resource TEXT,
		outcome TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		ip_address TEXT,
		user_agent TEXT,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_activities_timestamp ON activities(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_activities_user_id ON activities(user_id);
	CREATE INDEX IF NOT EXISTS idx_activities_action ON activities(action);
	CREATE INDEX IF NOT EXISTS idx_activities_outcome ON activities(outcome);
	`
	_, err := s.db.Exec(query)
	return err
}

// Record appends a record to the log.
func (s *SQLiteStore) Record(ctx context.Context, a *Activity) error {
	if a == nil {
		return fmt.Errorf("activity is required")
	}
	if a.Action == "" {
		return fmt.Errorf("activity action is required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if a.Outcome == "" {
		a.Outcome = OutcomeSuccess
	}

	var metadataJSON []byte
	if a.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO activities (
			id, user_id, session_id, action, resource, outcome,
			timestamp, ip_address, user_agent, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.SessionID, string(a.Action), a.Resource, string(a.Outcome),
		a.Timestamp, a.IPAddress, a.UserAgent, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// List returns matching records, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*Activity, error) {
	query := `
		SELECT id, user_id, session_id, action, resource, outcome,
		       timestamp, ip_address, user_agent, metadata
		FROM activities
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, act := range filter.Actions {
			placeholders[i] = "?"
			args = append(args, string(act))
		}
		query += fmt.Sprintf(" AND action IN (%s)", strings.Join(placeholders, ", "))
	}
	if filter.Outcome != nil {
		query += " AND outcome = ?"
		args = append(args, string(*filter.Outcome))
	}
	if filter.Since != nil {
		query += " AND timestamp >= ?"
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		query += " AND timestamp <= ?"
		args = append(args, *filter.Until)
	}

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			// SQLite requires LIMIT before OFFSET.
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search activities: %w", err)
	}
	defer rows.Close()

	records := make([]*Activity, 0)
	for rows.Next() {
		a := &Activity{}
		var userID, sessionID, resource, ipAddress, userAgent sql.NullString
		var metadataJSON []byte
		if err := rows.Scan(
			&a.ID, &userID, &sessionID, &a.Action, &resource, &a.Outcome,
			&a.Timestamp, &ipAddress, &userAgent, &metadataJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.UserID = userID.String
		a.SessionID = sessionID.String
		a.Resource = resource.String
		a.IPAddress = ipAddress.String
		a.UserAgent = userAgent.String
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &a.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		records = append(records, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}
	return records, nil
}

// CountSince returns the number of records at or after the given time.
func (s *SQLiteStore) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM activities WHERE timestamp >= ?", since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count activities: %w", err)
	}
	return count, nil
}

// Stats summarizes records inside the optional time range.
func (s *SQLiteStore) Stats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	stats := &Stats{
		RecordsByAction:  make(map[Action]int64),
		RecordsByOutcome: make(map[Outcome]int64),
	}

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	if start != nil {
		whereClause += " AND timestamp >= ?"
		args = append(args, *start)
		stats.TimeRange = &TimeRange{Start: *start}
	}
	if end != nil {
		whereClause += " AND timestamp <= ?"
		args = append(args, *end)
		if stats.TimeRange == nil {
			stats.TimeRange = &TimeRange{}
		}
		stats.TimeRange.End = *end
	}

	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM activities %s", whereClause), args...).Scan(&stats.TotalRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to get total records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT action, COUNT(*) FROM activities %s GROUP BY action", whereClause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get records by action: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var action Action
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		stats.RecordsByAction[action] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT outcome, COUNT(*) FROM activities %s GROUP BY outcome", whereClause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get records by outcome: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome Outcome
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		stats.RecordsByOutcome[outcome] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(DISTINCT user_id) FROM activities %s AND user_id != ''", whereClause), args...).Scan(&stats.UniqueUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique users: %w", err)
	}

	failedClause := whereClause + " AND action = 'login' AND outcome = 'failure'"
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM activities %s", failedClause), args...).Scan(&stats.FailedLogins)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed logins: %w", err)
	}

	return stats, nil
}

// Cleanup deletes records older than the retention window and returns the
// number removed.
func (s *SQLiteStore) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result, err := s.db.ExecContext(ctx, "DELETE FROM activities WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up activities: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
