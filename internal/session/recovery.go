package session

import (
	"context"
	"time"

	"lowcode-backend/internal/logging"
	"lowcode-backend/internal/store"
)

// Recoverer resolves an identity straight from the session table when the
// primary store did not. It owns a small dedicated pool so it keeps working
// while the main pool is exhausted. Every failure yields anonymous.
type Recoverer struct {
	db     *store.Store
	table  string
	secret string
	now    func() time.Time
}

func NewRecoverer(db *store.Store, table, secret string) *Recoverer {
	return &Recoverer{db: db, table: table, secret: secret, now: time.Now}
}

// Recover returns the session id and data for a raw cookie value, or ""
// and nil when the cookie is unsigned, forged, unknown, expired or carries
// no user.
func (r *Recoverer) Recover(ctx context.Context, raw string) (string, *Data) {
	sid, ok := DecodeCookie(raw, r.secret)
	if !ok {
		logging.Debugf("session recovery: cookie is not a valid signed value")
		return "", nil
	}

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		logging.Debugf("session recovery: %v", err)
		return "", nil
	}
	defer conn.Close()

	data, err := loadSession(ctx, conn, r.db.Dialect, r.table, sid, r.now())
	if err != nil {
		logging.Debugf("session recovery: %v", err)
		return "", nil
	}
	if data == nil || data.User == nil {
		return "", nil
	}
	logging.Debugf("session recovery: restored user %s", data.User.UserID)
	return sid, data
}
