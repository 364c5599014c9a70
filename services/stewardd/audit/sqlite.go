package audit

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink persists audit entries so the trail survives restarts. The
// retention cap is enforced on write.
type SQLiteSink struct {
	db  *sql.DB
	cap int
}

// NewSQLiteSink opens (or creates) the audit database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	sink := &SQLiteSink{db: db, cap: DefaultCap}
	if err := sink.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *SQLiteSink) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
        id TEXT PRIMARY KEY,
        occurred_at TIMESTAMP NOT NULL,
        program_id INTEGER NOT NULL,
        type TEXT NOT NULL,
        message TEXT NOT NULL,
        description TEXT,
        tx_hash TEXT
    );`)
	return err
}

// Append stores the entry and prunes anything beyond the retention cap.
func (s *SQLiteSink) Append(entry Entry) error {
	stamp(&entry)
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	_, err = tx.Exec(
		`INSERT INTO audit_log (id, occurred_at, program_id, type, message, description, tx_hash)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UTC().Format(time.RFC3339Nano), entry.ProgramID,
		entry.Type, entry.Message, entry.Description, entry.TxHash,
	)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`DELETE FROM audit_log WHERE id NOT IN (
            SELECT id FROM audit_log ORDER BY occurred_at DESC LIMIT ?
        )`, s.cap)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Recent returns up to limit entries ordered newest first.
func (s *SQLiteSink) Recent(limit int) ([]Entry, error) {
	if limit <= 0 || limit > s.cap {
		limit = s.cap
	}
	rows, err := s.db.Query(
		`SELECT id, occurred_at, program_id, type, message, description, tx_hash
         FROM audit_log ORDER BY occurred_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var entry Entry
		var occurredAt string
		var description, txHash sql.NullString
		if err := rows.Scan(&entry.ID, &occurredAt, &entry.ProgramID, &entry.Type, &entry.Message, &description, &txHash); err != nil {
			return nil, err
		}
		if parsed, err := time.Parse(time.RFC3339Nano, occurredAt); err == nil {
			entry.Timestamp = parsed
		}
		entry.Description = description.String
		entry.TxHash = txHash.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
