package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lowcode-backend/internal/metadata"
	"lowcode-backend/internal/store"
)

// Store persists sessions by id. Get returns nil without error for absent
// or expired sessions; expired ones are deleted as they are found.
type Store interface {
	Get(ctx context.Context, sid string) (*Data, error)
	Set(ctx context.Context, sid string, data *Data) error
	Destroy(ctx context.Context, sid string) error
	Touch(ctx context.Context, sid string, data *Data) error
}

// SQLStore keeps sessions in a table of the application database.
type SQLStore struct {
	db         *store.Store
	table      string
	defaultTTL time.Duration
	now        func() time.Time
}

func NewSQLStore(db *store.Store, table string, defaultTTL time.Duration) *SQLStore {
	return &SQLStore{db: db, table: table, defaultTTL: defaultTTL, now: time.Now}
}

// TableDDL returns the CREATE TABLE statement for the session table.
func TableDDL(d store.Dialect, table string) string {
	ts := d.TimestampType()
	updated := fmt.Sprintf("%s %s NOT NULL DEFAULT %s", d.QuoteIdent("updatedAt"), ts, d.NowExpr())
	if on := d.OnUpdateNow(); on != "" {
		updated += " " + on
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  %s VARCHAR(128) NOT NULL PRIMARY KEY,
  %s %s NOT NULL,
  %s BIGINT NOT NULL,
  %s %s NOT NULL DEFAULT %s,
  %s
)`,
		d.QuoteIdent(table),
		d.QuoteIdent("sid"),
		d.QuoteIdent("data"), d.ColumnType(metadata.Field{Type: metadata.TypeString}),
		d.QuoteIdent("expires"),
		d.QuoteIdent("createdAt"), ts, d.NowExpr(),
		updated,
	)
}

// EnsureTable creates the session table when missing.
func (s *SQLStore) EnsureTable(ctx context.Context) error {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, TableDDL(s.db.Dialect, s.table)); err != nil {
		return fmt.Errorf("create session table: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, sid string) (*Data, error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return loadSession(ctx, conn, s.db.Dialect, s.table, sid, s.now())
}

func (s *SQLStore) Set(ctx context.Context, sid string, data *Data) error {
	now := s.now()
	payload, err := encodeData(data)
	if err != nil {
		return err
	}
	expires := data.expiresAt(now, s.defaultTTL).UnixMilli()

	d := s.db.Dialect
	pb := d.NewParamBuilder()
	ts := d.TimeParam(now)
	query := fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s, %s) VALUES (%s, %s, %s, %s, %s) %s",
		d.QuoteIdent(s.table),
		d.QuoteIdent("sid"), d.QuoteIdent("data"), d.QuoteIdent("expires"), d.QuoteIdent("createdAt"), d.QuoteIdent("updatedAt"),
		pb.Add(sid), pb.Add(payload), pb.Add(expires), pb.Add(ts), pb.Add(ts),
		d.UpsertClause("sid", []string{"data", "expires", "updatedAt"}),
	)

	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := store.Exec(ctx, conn, query, pb.Params()...); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLStore) Destroy(ctx context.Context, sid string) error {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return deleteSession(ctx, conn, s.db.Dialect, s.table, sid)
}

// Touch refreshes only the expiry of an existing session.
func (s *SQLStore) Touch(ctx context.Context, sid string, data *Data) error {
	now := s.now()
	d := s.db.Dialect
	pb := d.NewParamBuilder()
	query := fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s WHERE %s = %s",
		d.QuoteIdent(s.table),
		d.QuoteIdent("expires"), pb.Add(data.expiresAt(now, s.defaultTTL).UnixMilli()),
		d.QuoteIdent("updatedAt"), pb.Add(d.TimeParam(now)),
		d.QuoteIdent("sid"), pb.Add(sid),
	)

	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := store.Exec(ctx, conn, query, pb.Params()...); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// loadSession reads one session row, deleting it when it has expired.
func loadSession(ctx context.Context, q store.Querier, d store.Dialect, table, sid string, now time.Time) (*Data, error) {
	pb := d.NewParamBuilder()
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = %s",
		d.QuoteIdent("data"), d.QuoteIdent("expires"), d.QuoteIdent(table), d.QuoteIdent("sid"), pb.Add(sid))

	var raw string
	var expires int64
	err := q.QueryRowContext(ctx, query, pb.Params()...).Scan(&raw, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if expires < now.UnixMilli() {
		if err := deleteSession(ctx, q, d, table, sid); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return decodeData(raw)
}

func deleteSession(ctx context.Context, q store.Querier, d store.Dialect, table, sid string) error {
	pb := d.NewParamBuilder()
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", d.QuoteIdent(table), d.QuoteIdent("sid"), pb.Add(sid))
	if _, err := store.Exec(ctx, q, query, pb.Params()...); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
