package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MattCruikshank/mindcare/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// TimestampLayout is how creation times are rendered for display.
const TimestampLayout = "2006-01-02 15:04"

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness constraint rejects a write.
	ErrConflict = errors.New("conflict")
)

// ServerDB handles server-side database operations.
type ServerDB struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewServerDB opens or creates the server database.
func NewServerDB(path string) (*ServerDB, error) {
	db, err := sqlx.Open("sqlite3", path+"?_fk=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers; one connection keeps :memory: databases coherent too.
	db.SetMaxOpenConns(1)

	sdb := &ServerDB{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := sdb.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return sdb, nil
}

// Close closes the database connection.
func (s *ServerDB) Close() error {
	return s.db.Close()
}

func (s *ServerDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			category TEXT NOT NULL,
			author TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS replies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id INTEGER NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
			author TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_replies_thread ON replies(thread_id, id);

		CREATE TABLE IF NOT EXISTS screenings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			total INTEGER NOT NULL,
			severity TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			counselor_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			name TEXT NOT NULL,
			contact TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (counselor_id, date, time)
		);

		CREATE TABLE IF NOT EXISTS chat_flags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			caller TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

type threadRow struct {
	models.Thread
	CreatedAt time.Time `db:"created_at"`
}

func (r threadRow) toModel() models.Thread {
	t := r.Thread
	t.Timestamp = r.CreatedAt.Format(TimestampLayout)
	return t
}

type replyRow struct {
	models.Reply
	CreatedAt time.Time `db:"created_at"`
}

func (r replyRow) toModel() models.Reply {
	rep := r.Reply
	rep.Timestamp = r.CreatedAt.Format(TimestampLayout)
	return rep
}

// CreateThread creates a new thread.
func (s *ServerDB) CreateThread(author, title, category, message string) (*models.Thread, error) {
	now := s.now()
	res, err := s.db.Exec(`INSERT INTO threads (title, category, author, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		title, category, author, message, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Thread{
		ID:        id,
		Title:     title,
		Category:  category,
		Author:    author,
		Timestamp: now.Format(TimestampLayout),
		Message:   message,
	}, nil
}

const threadColumns = `
	t.id, t.title, t.category, t.author, t.message, t.created_at,
	(SELECT COUNT(*) FROM replies r WHERE r.thread_id = t.id) AS reply_count`

// GetThreads returns all threads, newest first, with their reply counts.
func (s *ServerDB) GetThreads() ([]models.Thread, error) {
	var rows []threadRow
	if err := s.db.Select(&rows, `SELECT `+threadColumns+` FROM threads t ORDER BY t.id DESC`); err != nil {
		return nil, err
	}
	threads := make([]models.Thread, 0, len(rows))
	for _, r := range rows {
		threads = append(threads, r.toModel())
	}
	return threads, nil
}

// GetThread returns a single thread by ID.
func (s *ServerDB) GetThread(id int64) (*models.Thread, error) {
	var row threadRow
	err := s.db.Get(&row, `SELECT `+threadColumns+` FROM threads t WHERE t.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t := row.toModel()
	return &t, nil
}

// GetReplies returns the replies of a thread in creation order.
func (s *ServerDB) GetReplies(threadID int64) ([]models.Reply, error) {
	var rows []replyRow
	err := s.db.Select(&rows, `
		SELECT id, thread_id, author, text, created_at
		FROM replies WHERE thread_id = ? ORDER BY id
	`, threadID)
	if err != nil {
		return nil, err
	}
	replies := make([]models.Reply, 0, len(rows))
	for _, r := range rows {
		replies = append(replies, r.toModel())
	}
	return replies, nil
}

// CreateReply appends a reply to an existing thread.
func (s *ServerDB) CreateReply(threadID int64, author, text string) (*models.Reply, error) {
	now := s.now()
	res, err := s.db.Exec(`INSERT INTO replies (thread_id, author, text, created_at) VALUES (?, ?, ?, ?)`,
		threadID, author, text, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return nil, ErrNotFound
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Reply{
		ID:        id,
		ThreadID:  threadID,
		Author:    author,
		Text:      text,
		Timestamp: now.Format(TimestampLayout),
	}, nil
}

// SaveScreening records a completed screening.
func (s *ServerDB) SaveScreening(result *models.ScreeningResult) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = s.now()
	}
	res, err := s.db.Exec(`INSERT INTO screenings (type, total, severity, created_at) VALUES (?, ?, ?, ?)`,
		result.Type, result.Total, result.Severity, result.CreatedAt)
	if err != nil {
		return err
	}
	result.ID, err = res.LastInsertId()
	return err
}

// RecentScreenings returns screenings at or above minTotal, newest first.
func (s *ServerDB) RecentScreenings(minTotal, limit int) ([]models.ScreeningResult, error) {
	var results []models.ScreeningResult
	err := s.db.Select(&results, `
		SELECT id, type, total, severity, created_at FROM screenings
		WHERE total >= ? ORDER BY id DESC LIMIT ?
	`, minTotal, limit)
	return results, err
}

// CreateBooking stores a booking. A taken slot yields ErrConflict.
func (s *ServerDB) CreateBooking(b *models.Booking) error {
	b.CreatedAt = s.now()
	res, err := s.db.NamedExec(`
		INSERT INTO bookings (counselor_id, date, time, name, contact, notes, created_at)
		VALUES (:counselor_id, :date, :time, :name, :contact, :notes, :created_at)
	`, b)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrConflict
		}
		return err
	}
	b.ID, err = res.LastInsertId()
	return err
}

// BookedTimes returns the booked HH:MM slots of a counselor on a date.
func (s *ServerDB) BookedTimes(counselorID int, date string) ([]string, error) {
	var times []string
	err := s.db.Select(&times, `SELECT time FROM bookings WHERE counselor_id = ? AND date = ? ORDER BY time`,
		counselorID, date)
	return times, err
}

// RecordChatFlag records a notable chat event such as a crisis intervention.
func (s *ServerDB) RecordChatFlag(kind, caller string) error {
	_, err := s.db.Exec(`INSERT INTO chat_flags (kind, caller, created_at) VALUES (?, ?, ?)`, kind, caller, s.now())
	return err
}

// Counts holds the aggregate numbers behind the admin dashboard.
type Counts struct {
	Authors     int `db:"authors"`
	Threads     int `db:"threads"`
	Replies     int `db:"replies"`
	Screenings  int `db:"screenings"`
	Bookings    int `db:"bookings"`
	CrisisFlags int `db:"crisis_flags"`
}

// GetCounts returns aggregate counts across all tables.
func (s *ServerDB) GetCounts() (Counts, error) {
	var c Counts
	err := s.db.Get(&c, `
		SELECT
			(SELECT COUNT(*) FROM (
				SELECT author AS who FROM threads
				UNION SELECT author FROM replies
				UNION SELECT name FROM bookings
				UNION SELECT caller FROM chat_flags
			)) AS authors,
			(SELECT COUNT(*) FROM threads) AS threads,
			(SELECT COUNT(*) FROM replies) AS replies,
			(SELECT COUNT(*) FROM screenings) AS screenings,
			(SELECT COUNT(*) FROM bookings) AS bookings,
			(SELECT COUNT(*) FROM chat_flags WHERE kind = 'crisis') AS crisis_flags
	`)
	return c, err
}
