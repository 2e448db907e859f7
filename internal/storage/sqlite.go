package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"remibot/internal/remind"
	logx "remibot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the sqlite store, creating the file and schema if needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Instants are stored as Unix milliseconds (see migrations.sql). The
// dispatcher only produces whole-second instants, so nothing is lost.
func fmtTime(t time.Time) int64 { return t.UnixMilli() }

func parseTime(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func (s *sqliteStore) InsertReminder(ctx context.Context, r remind.Reminder) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(id, owner_id, chat_id, email, message, fire_at, pattern, channel, active, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.OwnerID, r.ChatID, r.Email, r.Message,
		fmtTime(r.FireAt), r.Pattern.String(), string(r.Channel), boolInt(r.Active), fmtTime(r.CreatedAt),
	)
	return err
}

const reminderCols = `id, owner_id, chat_id, email, message, fire_at, pattern, channel, active, created_at`

func (s *sqliteStore) GetReminder(ctx context.Context, id string) (remind.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return remind.Reminder{}, ErrNotFound
	}
	return r, err
}

func (s *sqliteStore) ListActiveDueBy(ctx context.Context, due time.Time) ([]remind.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE active = 1 AND fire_at <= ? ORDER BY fire_at`,
		fmtTime(due))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (s *sqliteStore) ListActiveByOwner(ctx context.Context, owner int64, limit int) ([]remind.Reminder, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE owner_id = ? AND active = 1 ORDER BY fire_at LIMIT ?`,
		owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (s *sqliteStore) DeactivateOwned(ctx context.Context, id string, owner int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET active = 0 WHERE id = ? AND owner_id = ? AND active = 1`,
		id, owner)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) AdvanceReminder(ctx context.Context, id string, prev, next time.Time, active bool) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if active {
		res, err = s.db.ExecContext(ctx,
			`UPDATE reminders SET fire_at = ? WHERE id = ? AND active = 1 AND fire_at = ?`,
			fmtTime(next), id, fmtTime(prev))
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE reminders SET active = 0 WHERE id = ? AND active = 1 AND fire_at = ?`,
			id, fmtTime(prev))
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) HasSent(ctx context.Context, reminderID string, occurrence time.Time) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM deliveries WHERE reminder_id = ? AND scheduled_for = ? AND outcome = ? LIMIT 1`,
		reminderID, fmtTime(occurrence), string(remind.OutcomeSent)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, rec remind.DeliveryRecord) error {
	if rec.FiredAt.IsZero() {
		rec.FiredAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(reminder_id, scheduled_for, fired_at, channel, outcome, error_detail)
		 VALUES(?,?,?,?,?,?)`,
		rec.ReminderID, fmtTime(rec.ScheduledFor), fmtTime(rec.FiredAt),
		string(rec.Channel), string(rec.Outcome), nullStr(rec.ErrorDetail),
	)
	return err
}

func (s *sqliteStore) PruneDeliveries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM deliveries WHERE fired_at < ?`, fmtTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (remind.Reminder, error) {
	var (
		r               remind.Reminder
		fireAt, created int64
		pat, cha        string
		active          int
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.ChatID, &r.Email, &r.Message,
		&fireAt, &pat, &cha, &active, &created)
	if err != nil {
		return remind.Reminder{}, err
	}
	r.FireAt = parseTime(fireAt)
	r.CreatedAt = parseTime(created)
	r.Pattern = remind.ParsePattern(pat)
	r.Channel = remind.Channel(cha)
	r.Active = active != 0
	return r, nil
}

func collectReminders(rows *sql.Rows) ([]remind.Reminder, error) {
	var out []remind.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
