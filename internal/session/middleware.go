package session

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"lowcode-backend/internal/logging"
	"lowcode-backend/internal/metadata"
)

// legacyCookieName is always accepted on read.
const legacyCookieName = "connect.sid"

const localsKey = "session"

type Options struct {
	Secret     string
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

// Manager resolves the session for each request and persists changes after
// the handler ran.
type Manager struct {
	store     Store
	opts      Options
	recoverer *Recoverer
	now       func() time.Time
}

// requestSession is the per-request session state kept in fiber locals.
type requestSession struct {
	sid       string
	data      *Data
	loaded    bool
	destroyed bool
}

// NewManager builds a session manager. recoverer may be nil.
func NewManager(s Store, opts Options, recoverer *Recoverer) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "sid"
	}
	return &Manager{store: s, opts: opts, recoverer: recoverer, now: time.Now}
}

func (m *Manager) rawCookie(c *fiber.Ctx) string {
	for _, name := range []string{m.opts.CookieName, "sid", legacyCookieName} {
		if v := c.Cookies(name); v != "" {
			return v
		}
	}
	return ""
}

// Middleware attaches the session identity, if any, to the request. The
// primary store is asked first; when it yields no identity the recovery
// path gets a chance. Store failures never fail the request.
func (m *Manager) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		st := &requestSession{}
		raw := m.rawCookie(c)

		if raw != "" {
			if sid, ok := DecodeCookie(raw, m.opts.Secret); ok {
				data, err := m.store.Get(c.Context(), sid)
				if err != nil {
					logging.Warnf("session store get failed: %v", err)
				} else if data != nil {
					st.sid, st.data, st.loaded = sid, data, true
				}
			}
		}

		if (st.data == nil || st.data.User == nil) && raw != "" && m.recoverer != nil {
			if sid, data := m.recoverer.Recover(c.Context(), raw); data != nil {
				st.sid, st.data = sid, data
			}
		}

		if st.data != nil && st.data.User != nil {
			c.Locals(metadata.IdentityLocalsKey, st.data.User)
		}
		c.Locals(localsKey, st)

		err := c.Next()
		m.commit(c, st)
		return err
	}
}

// commit slides the expiry of a session loaded from the store. Login has
// already saved new sessions, and recovered ones are left alone.
func (m *Manager) commit(c *fiber.Ctx, st *requestSession) {
	if st.destroyed || !st.loaded || st.data == nil {
		return
	}
	st.data.refresh(m.now(), m.opts.MaxAge)
	if err := m.store.Touch(c.Context(), st.sid, st.data); err != nil {
		logging.Warnf("session store touch failed: %v", err)
	}
}

func stateOf(c *fiber.Ctx) *requestSession {
	if st, ok := c.Locals(localsKey).(*requestSession); ok {
		return st
	}
	st := &requestSession{}
	c.Locals(localsKey, st)
	return st
}

// Login starts a new session for user, saves it before returning and sets
// the signed cookie.
func (m *Manager) Login(c *fiber.Ctx, user *metadata.Identity) error {
	st := stateOf(c)
	if st.sid != "" && st.loaded {
		if err := m.store.Destroy(c.Context(), st.sid); err != nil {
			logging.Warnf("session store destroy failed: %v", err)
		}
	}

	sid := uuid.NewString()
	data := newData(user, m.now(), m.opts.MaxAge)
	if err := m.store.Set(c.Context(), sid, data); err != nil {
		return err
	}
	*st = requestSession{sid: sid, data: data}

	c.Locals(metadata.IdentityLocalsKey, user)
	c.Cookie(m.cookie(EncodeCookie(sid, m.opts.Secret), data.Cookie.Expires))
	return nil
}

// Logout destroys the current session and clears the cookie.
func (m *Manager) Logout(c *fiber.Ctx) error {
	st := stateOf(c)
	if st.sid != "" {
		if err := m.store.Destroy(c.Context(), st.sid); err != nil {
			return err
		}
	}
	st.destroyed = true
	c.Locals(metadata.IdentityLocalsKey, nil)
	c.Cookie(m.cookie("", ptrTime(time.Unix(0, 0))))
	return nil
}

func (m *Manager) cookie(value string, expires *time.Time) *fiber.Cookie {
	ck := &fiber.Cookie{
		Name:     m.opts.CookieName,
		Value:    value,
		Path:     "/",
		HTTPOnly: true,
		Secure:   m.opts.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
	if expires != nil {
		ck.Expires = *expires
	}
	return ck
}

func ptrTime(t time.Time) *time.Time { return &t }
