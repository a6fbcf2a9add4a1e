package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SQLiteStore is a SQLite-backed audit store. Appends are buffered
// and written in batches by a background flusher; a full buffer drops
// records rather than blocking the access-check path.
type SQLiteStore struct {
	db     *sql.DB
	buffer chan Record
	done   chan struct{}
	wg     sync.WaitGroup

	batchSize     int
	flushInterval time.Duration
}

// SQLiteConfig configures the SQLite audit store.
type SQLiteConfig struct {
	// BatchSize is the number of records per write.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize is the in-memory record buffer capacity.
	BufferSize int
}

// NewSQLiteStore creates a SQLite-backed audit store.
func NewSQLiteStore(db *sql.DB, cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 10000
	}

	s := &SQLiteStore{
		db:            db,
		buffer:        make(chan Record, cfg.BufferSize),
		done:          make(chan struct{}),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
	}

	if err := s.createTable(); err != nil {
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	s.wg.Add(1)
	go s.flusher()

	return s, nil
}

func (s *SQLiteStore) createTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS access_audit (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			endpoint_id TEXT NOT NULL,
			method TEXT,
			path TEXT,
			user_id TEXT,
			roles TEXT,
			decision TEXT NOT NULL,
			reason TEXT,
			allowed INTEGER NOT NULL,
			required_permissions TEXT,
			missing_roles TEXT,
			missing_permissions TEXT,
			cache_hit INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON access_audit(timestamp);
		CREATE INDEX IF NOT EXISTS idx_audit_endpoint ON access_audit(endpoint_id);
		CREATE INDEX IF NOT EXISTS idx_audit_user ON access_audit(user_id);
	`)
	return err
}

// Append buffers a record for the background flusher. Non-blocking.
func (s *SQLiteStore) Append(_ context.Context, rec Record) error {
	rec.Fill()
	select {
	case s.buffer <- rec:
	default:
		// Buffer full, drop record (best-effort)
	}
	return nil
}

// Flush forces pending records to be written.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	return s.write(ctx, s.drain())
}

func (s *SQLiteStore) drain() []Record {
	var recs []Record
	for {
		select {
		case r := <-s.buffer:
			recs = append(recs, r)
		default:
			return recs
		}
	}
}

func (s *SQLiteStore) flusher() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	var batch []Record

	for {
		select {
		case <-s.done:
			if len(batch) > 0 {
				s.write(context.Background(), batch)
			}
			if remaining := s.drain(); len(remaining) > 0 {
				s.write(context.Background(), remaining)
			}
			return

		case r := <-s.buffer:
			batch = append(batch, r)
			if len(batch) >= s.batchSize {
				s.write(context.Background(), batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.write(context.Background(), batch)
				batch = nil
			}
		}
	}
}

func (s *SQLiteStore) write(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO access_audit (
			id, timestamp, endpoint_id, method, path, user_id, roles,
			decision, reason, allowed, required_permissions,
			missing_roles, missing_permissions, cache_hit, duration_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		allowed := 0
		if r.Allowed {
			allowed = 1
		}
		cacheHit := 0
		if r.CacheHit {
			cacheHit = 1
		}

		_, err := stmt.ExecContext(ctx,
			r.ID, r.Timestamp.Format(time.RFC3339Nano),
			r.EndpointID, r.Method, r.Path, r.UserID, joinList(r.Roles),
			r.Decision, r.Reason, allowed, joinList(r.RequiredPermissions),
			joinList(r.MissingRoles), joinList(r.MissingPermissions),
			cacheHit, int64(r.Duration),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// List returns matching records, newest first.
func (s *SQLiteStore) List(ctx context.Context, q Query) ([]Record, error) {
	var conditions []string
	var args []any

	if q.EndpointID != "" {
		conditions = append(conditions, "endpoint_id = ?")
		args = append(args, q.EndpointID)
	}
	if q.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, q.UserID)
	}
	if !q.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, q.Since.Format(time.RFC3339Nano))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := 100
	if q.Limit > 0 {
		limit = q.Limit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, timestamp, endpoint_id, method, path, user_id, roles,
			decision, reason, allowed, required_permissions,
			missing_roles, missing_permissions, cache_hit, duration_ns
		FROM access_audit %s
		ORDER BY timestamp DESC
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var ts string
		var allowed, cacheHit int
		var durationNS int64
		var method, path, userID, reason sql.NullString
		var roles, requiredPerms, missingRoles, missingPerms sql.NullString

		err := rows.Scan(
			&r.ID, &ts, &r.EndpointID, &method, &path, &userID, &roles,
			&r.Decision, &reason, &allowed, &requiredPerms,
			&missingRoles, &missingPerms, &cacheHit, &durationNS,
		)
		if err != nil {
			return nil, err
		}

		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		r.Method = method.String
		r.Path = path.String
		r.UserID = userID.String
		r.Roles = splitList(roles.String)
		r.Reason = reason.String
		r.Allowed = allowed == 1
		r.RequiredPermissions = splitList(requiredPerms.String)
		r.MissingRoles = splitList(missingRoles.String)
		r.MissingPermissions = splitList(missingPerms.String)
		r.CacheHit = cacheHit == 1
		r.Duration = time.Duration(durationNS)

		out = append(out, r)
	}

	return out, rows.Err()
}

// joinList flattens a string list for a TEXT column.
func joinList(list []string) string {
	return strings.Join(list, ",")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// Close flushes and stops the background writer.
func (s *SQLiteStore) Close() error {
	close(s.done)
	s.wg.Wait()
	return nil
}
