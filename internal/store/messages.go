package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wesm/emlx/internal/emlx"
	"github.com/wesm/emlx/internal/scan"
)

// Message is one indexed .emlx file.
type Message struct {
	ID           int64
	MailboxID    int64
	MailboxLabel string
	Path         string
	ByteCount    int64
	MessageID    string
	Subject      string
	Sender       string
	RawFlags     uint64
	Flags        emlx.FlagMap
	DateReceived time.Time // zero if unknown
	IndexedAt    time.Time
}

// MailboxCount is the number of indexed messages in one mailbox.
type MailboxCount struct {
	Label    string
	Path     string
	Messages int64
	Unread   int64
}

// messageRow holds the column values of one messages row and its
// mailbox. It keeps no reference to the scanned record or its MIME bytes.
type messageRow struct {
	mailboxPath  string
	mailboxLabel string
	path         string
	byteCount    int64
	messageID    sql.NullString
	subject      sql.NullString
	sender       sql.NullString
	rawFlags     int64
	flagsJSON    string
	isRead       bool
	isFlagged    bool
	isJunk       bool
	isDeleted    bool
	dateReceived sql.NullTime
}

func newMessageRow(e scan.Entry) (messageRow, error) {
	rec := e.Record
	if rec == nil {
		return messageRow{}, fmt.Errorf("upsert %s: nil record", e.Path)
	}
	flags, err := json.Marshal(rec.Flags)
	if err != nil {
		return messageRow{}, fmt.Errorf("upsert %s: encode flags: %w", e.Path, err)
	}

	row := messageRow{
		mailboxPath:  e.Mailbox.Path,
		mailboxLabel: e.Mailbox.Label,
		path:         e.Path,
		byteCount:    rec.ByteCount,
		messageID:    nullString(rec.MessageID),
		rawFlags:     int64(rec.RawFlags),
		flagsJSON:    string(flags),
		isRead:       rec.Flags.Has(emlx.FlagRead),
		isFlagged:    rec.Flags.Has(emlx.FlagFlagged),
		isJunk:       rec.Flags.Has(emlx.FlagIsJunk),
		isDeleted:    rec.Flags.Has(emlx.FlagDeleted),
	}
	if received := rec.DateReceived(); !received.IsZero() {
		row.dateReceived = sql.NullTime{Time: received.UTC(), Valid: true}
	}
	if doc := rec.Message; doc != nil {
		row.subject = nullString(doc.Subject)
		if len(doc.From) > 0 {
			row.sender = nullString(doc.From[0].Email)
		}
	}
	return row, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// UpsertMessage indexes one scanned file, creating its mailbox row if
// needed. Re-indexing a path replaces the previous row's values.
func (s *Store) UpsertMessage(e scan.Entry) (int64, error) {
	row, err := newMessageRow(e)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.withTx(func(tx *sql.Tx) error {
		var err error
		id, err = upsertMessageTx(tx, row, time.Now().UTC())
		return err
	})
	return id, err
}

// UpsertMessages indexes entries in a single transaction.
func (s *Store) UpsertMessages(entries []scan.Entry) error {
	rows := make([]messageRow, 0, len(entries))
	for _, e := range entries {
		row, err := newMessageRow(e)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	return s.upsertRows(rows)
}

func (s *Store) upsertRows(rows []messageRow) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.withTx(func(tx *sql.Tx) error {
		for _, row := range rows {
			if _, err := upsertMessageTx(tx, row, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertMessageTx(tx *sql.Tx, row messageRow, now time.Time) (int64, error) {
	mailboxID, err := ensureMailboxTx(tx, row.mailboxPath, row.mailboxLabel)
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(`
		INSERT INTO messages (
			mailbox_id, path, byte_count, message_id, subject, sender,
			raw_flags, flags_json, is_read, is_flagged, is_junk, is_deleted,
			date_received, indexed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mailbox_id = excluded.mailbox_id,
			byte_count = excluded.byte_count,
			message_id = excluded.message_id,
			subject = excluded.subject,
			sender = excluded.sender,
			raw_flags = excluded.raw_flags,
			flags_json = excluded.flags_json,
			is_read = excluded.is_read,
			is_flagged = excluded.is_flagged,
			is_junk = excluded.is_junk,
			is_deleted = excluded.is_deleted,
			date_received = excluded.date_received,
			indexed_at = excluded.indexed_at
	`, mailboxID, row.path, row.byteCount, row.messageID, row.subject, row.sender,
		row.rawFlags, row.flagsJSON, row.isRead, row.isFlagged, row.isJunk, row.isDeleted,
		row.dateReceived, now)
	if err != nil {
		return 0, fmt.Errorf("upsert %s: %w", row.path, err)
	}

	var id int64
	if err := tx.QueryRow(`SELECT id FROM messages WHERE path = ?`, row.path).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert %s: read id: %w", row.path, err)
	}
	return id, nil
}

func ensureMailboxTx(tx *sql.Tx, path, label string) (int64, error) {
	_, err := tx.Exec(`
		INSERT INTO mailboxes (path, label) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET label = excluded.label
	`, path, label)
	if err != nil {
		return 0, fmt.Errorf("ensure mailbox %s: %w", path, err)
	}
	var id int64
	if err := tx.QueryRow(`SELECT id FROM mailboxes WHERE path = ?`, path).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensure mailbox %s: read id: %w", path, err)
	}
	return id, nil
}

// CountByFlag returns how many indexed messages have the named flag set
// (non-zero for counters such as attachment_count).
func (s *Store) CountByFlag(name string) (int64, error) {
	if emlx.FlagWidth(name) == 0 {
		return 0, fmt.Errorf("unknown flag %q", name)
	}
	var n int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE json_extract(flags_json, '$.' || ?) IS NOT NULL`,
		name,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count flag %s: %w", name, err)
	}
	return n, nil
}

// MailboxCounts returns per-mailbox message counts ordered by label.
func (s *Store) MailboxCounts() ([]MailboxCount, error) {
	rows, err := s.db.Query(`
		SELECT b.label, b.path, COUNT(m.id), COALESCE(SUM(CASE WHEN m.id IS NOT NULL AND NOT m.is_read THEN 1 ELSE 0 END), 0)
		FROM mailboxes b
		LEFT JOIN messages m ON m.mailbox_id = b.id
		GROUP BY b.id
		ORDER BY b.label, b.path
	`)
	if err != nil {
		return nil, fmt.Errorf("mailbox counts: %w", err)
	}
	defer rows.Close()

	var counts []MailboxCount
	for rows.Next() {
		var c MailboxCount
		if err := rows.Scan(&c.Label, &c.Path, &c.Messages, &c.Unread); err != nil {
			return nil, fmt.Errorf("scan mailbox count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

const selectMessageColumns = `
	m.id, m.mailbox_id, b.label, m.path, m.byte_count, m.message_id,
	m.subject, m.sender, m.raw_flags, m.flags_json, m.date_received, m.indexed_at`

// GetMessageByPath returns the indexed row for path, or nil if absent.
func (s *Store) GetMessageByPath(path string) (*Message, error) {
	row := s.db.QueryRow(`SELECT `+selectMessageColumns+`
		FROM messages m JOIN mailboxes b ON b.id = m.mailbox_id
		WHERE m.path = ?`, path)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", path, err)
	}
	return msg, nil
}

// Search returns messages whose subject or sender contains every term of
// query, newest first. It uses the FTS5 index when available.
func (s *Store) Search(query string, limit int) ([]Message, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	var (
		where string
		args  []any
	)
	if s.fts5Available {
		quoted := make([]string, len(terms))
		for i, t := range terms {
			quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
		}
		where = `m.id IN (SELECT rowid FROM messages_fts WHERE messages_fts MATCH ?)`
		args = append(args, strings.Join(quoted, " "))
	} else {
		clauses := make([]string, len(terms))
		for i, t := range terms {
			clauses[i] = `(m.subject LIKE ? ESCAPE '\' OR m.sender LIKE ? ESCAPE '\')`
			pattern := "%" + escapeLike(t) + "%"
			args = append(args, pattern, pattern)
		}
		where = strings.Join(clauses, " AND ")
	}
	args = append(args, limit)

	rows, err := s.db.Query(`SELECT `+selectMessageColumns+`
		FROM messages m JOIN mailboxes b ON b.id = m.mailbox_id
		WHERE `+where+`
		ORDER BY m.date_received DESC, m.id
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (*Message, error) {
	var (
		m            Message
		messageID    sql.NullString
		subject      sql.NullString
		sender       sql.NullString
		rawFlags     int64
		flagsJSON    string
		dateReceived sql.NullTime
	)
	err := r.Scan(&m.ID, &m.MailboxID, &m.MailboxLabel, &m.Path, &m.ByteCount, &messageID,
		&subject, &sender, &rawFlags, &flagsJSON, &dateReceived, &m.IndexedAt)
	if err != nil {
		return nil, err
	}
	m.MessageID = messageID.String
	m.Subject = subject.String
	m.Sender = sender.String
	m.RawFlags = uint64(rawFlags)
	if dateReceived.Valid {
		m.DateReceived = dateReceived.Time.UTC()
	}
	m.Flags, err = decodeFlagsJSON(flagsJSON)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// decodeFlagsJSON restores a FlagMap, turning JSON numbers back into ints.
func decodeFlagsJSON(s string) (emlx.FlagMap, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("decode flags_json: %w", err)
	}
	flags := make(emlx.FlagMap, len(raw))
	for k, v := range raw {
		if n, ok := v.(float64); ok {
			flags[k] = int(n)
			continue
		}
		flags[k] = v
	}
	return flags, nil
}
