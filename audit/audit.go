// Package audit records every mutating tool call to a local SQLite trail:
// who changed what, through which transport, with which parameters, and —
// for content edits — the rendered diff. Writes are asynchronous so the
// tool path never waits on the trail.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/passerelle/dbopen"
	"github.com/hazyhaar/passerelle/idgen"
	"github.com/hazyhaar/passerelle/kit"
)

const (
	// bufferSize is the LogAsync channel capacity. When full, entries are
	// dropped and counted rather than blocking a tool call.
	bufferSize = 256

	// batchSize is how many queued entries the writer folds into one
	// transaction before committing.
	batchSize = 32
)

// Entry is one audit row. Zero-value fields are filled in by the logger:
// EntryID, Timestamp, Status (derived from Error), and the context-carried
// fields when a context is available.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"` // milliseconds since epoch
	Action     string `json:"action"`
	Actor      string `json:"actor"`
	Project    string `json:"project"`
	Target     string `json:"target"`
	Transport  string `json:"transport"`
	RequestID  string `json:"request_id"`
	Parameters string `json:"parameters"`
	Detail     string `json:"detail,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// TargetProvider lets request types declare what the operation acts on,
// so failed calls still carry project/target in the trail.
type TargetProvider interface {
	AuditTarget() (project, target string)
}

// DetailProvider lets result types attach an outcome payload to the trail,
// e.g. the rendered diff of a content edit.
type DetailProvider interface {
	AuditDetail() string
}

// SQLiteLogger persists entries to an audit_log table.
type SQLiteLogger struct {
	db    *sql.DB
	newID idgen.Generator
	log   *slog.Logger

	ch      chan *Entry
	done    chan struct{}
	dropped atomic.Int64
	once    sync.Once
}

// Option configures a SQLiteLogger.
type Option func(*SQLiteLogger)

// WithIDGenerator overrides the entry ID generator (default "aud_"-prefixed
// UUIDv7).
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *SQLiteLogger) { l.newID = gen }
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *SQLiteLogger) { l.log = log }
}

// NewSQLiteLogger creates a logger writing to db. Call Init once at
// startup, then Log or LogAsync; Close flushes and stops the writer.
func NewSQLiteLogger(db *sql.DB, opts ...Option) *SQLiteLogger {
	l := &SQLiteLogger{
		db:    db,
		newID: idgen.Prefixed("aud_", idgen.Default),
		log:   slog.Default(),
		ch:    make(chan *Entry, bufferSize),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.writer()
	return l
}

// Init creates the audit_log table if it does not exist.
func (l *SQLiteLogger) Init() error {
	_, err := l.db.Exec(Schema)
	return err
}

// Log writes an entry synchronously. Defaults are filled from ctx.
func (l *SQLiteLogger) Log(ctx context.Context, e *Entry) error {
	l.fill(ctx, e)
	_, err := dbopen.Exec(ctx, l.db, insertSQL, e.args()...)
	return err
}

// LogAsync queues an entry for the background writer. It never blocks:
// when the buffer is full the entry is dropped and counted.
func (l *SQLiteLogger) LogAsync(e *Entry) {
	l.fill(context.Background(), e)
	select {
	case l.ch <- e:
	default:
		n := l.dropped.Add(1)
		l.log.Warn("audit: buffer full, entry dropped", "action", e.Action, "total_dropped", n)
	}
}

// Dropped returns how many entries LogAsync has discarded.
func (l *SQLiteLogger) Dropped() int64 { return l.dropped.Load() }

// Close flushes queued entries and stops the writer. Safe to call more
// than once.
func (l *SQLiteLogger) Close() error {
	l.once.Do(func() {
		close(l.ch)
		<-l.done
	})
	return nil
}

// Recent returns the newest entries, most recent first.
func (l *SQLiteLogger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT entry_id, timestamp, action, actor, project, target,
		       transport, request_id, parameters, detail, status, error_message
		FROM audit_log ORDER BY timestamp DESC, entry_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EntryID, &e.Timestamp, &e.Action, &e.Actor,
			&e.Project, &e.Target, &e.Transport, &e.RequestID,
			&e.Parameters, &e.Detail, &e.Status, &e.Error); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *SQLiteLogger) fill(ctx context.Context, e *Entry) {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	if e.Status == "" {
		if e.Error != "" {
			e.Status = "error"
		} else {
			e.Status = "success"
		}
	}
	if e.Actor == "" {
		e.Actor = kit.GetActor(ctx)
	}
	if e.Transport == "" {
		e.Transport = kit.GetTransport(ctx)
	}
	if e.RequestID == "" {
		e.RequestID = kit.GetRequestID(ctx)
	}
}

const insertSQL = `
INSERT INTO audit_log (entry_id, timestamp, action, actor, project, target,
	transport, request_id, parameters, detail, status, error_message)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (e *Entry) args() []any {
	return []any{e.EntryID, e.Timestamp, e.Action, e.Actor, e.Project,
		e.Target, e.Transport, e.RequestID, e.Parameters, e.Detail,
		e.Status, e.Error}
}

// writer drains the channel, folding bursts into batched transactions.
func (l *SQLiteLogger) writer() {
	defer close(l.done)
	for e, ok := <-l.ch; ok; e, ok = <-l.ch {
		batch := []*Entry{e}
	drain:
		for len(batch) < batchSize {
			select {
			case more, okMore := <-l.ch:
				if !okMore {
					l.insertBatch(batch)
					return
				}
				batch = append(batch, more)
			default:
				break drain
			}
		}
		l.insertBatch(batch)
	}
}

func (l *SQLiteLogger) insertBatch(batch []*Entry) {
	err := dbopen.RunTx(context.Background(), l.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(insertSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range batch {
			if _, err := stmt.Exec(e.args()...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		l.log.Error("audit: batch insert failed", "error", err, "entries", len(batch))
	}
}

// Middleware wraps an endpoint so every invocation lands in the trail.
// Request parameters are serialized as JSON; project/target come from the
// request when it implements TargetProvider, and the outcome detail from
// the response when it implements DetailProvider.
func Middleware(l *SQLiteLogger, action string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			e := &Entry{Action: action}
			if data, err := json.Marshal(req); err == nil {
				e.Parameters = string(data)
			}
			if tp, ok := req.(TargetProvider); ok {
				e.Project, e.Target = tp.AuditTarget()
			}

			resp, err := next(ctx, req)

			if err != nil {
				e.Error = err.Error()
			} else if dp, ok := resp.(DetailProvider); ok {
				e.Detail = dp.AuditDetail()
			}
			// Fill context-derived fields before the goroutine handoff.
			l.fill(ctx, e)
			l.LogAsync(e)
			return resp, err
		}
	}
}
