package session

import (
	"encoding/json"
	"fmt"
	"time"

	"lowcode-backend/internal/logging"
	"lowcode-backend/internal/metadata"
)

// CookieData mirrors the cookie block stored with each session.
// OriginalMaxAge is in milliseconds.
type CookieData struct {
	Expires        *time.Time `json:"expires,omitempty"`
	OriginalMaxAge *int64     `json:"originalMaxAge,omitempty"`
	HTTPOnly       bool       `json:"httpOnly"`
	Path           string     `json:"path,omitempty"`
}

// Data is the serialized session payload.
type Data struct {
	Cookie CookieData         `json:"cookie"`
	User   *metadata.Identity `json:"user,omitempty"`
}

// newData returns a session that expires maxAge from now.
func newData(user *metadata.Identity, now time.Time, maxAge time.Duration) *Data {
	d := &Data{Cookie: CookieData{HTTPOnly: true, Path: "/"}, User: user}
	d.refresh(now, maxAge)
	return d
}

// refresh slides the expiry forward by maxAge.
func (d *Data) refresh(now time.Time, maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}
	exp := now.Add(maxAge).UTC()
	ms := maxAge.Milliseconds()
	d.Cookie.Expires = &exp
	d.Cookie.OriginalMaxAge = &ms
}

// expiresAt picks the explicit cookie expiry, then now plus the cookie's max
// age, then now plus fallback.
func (d *Data) expiresAt(now time.Time, fallback time.Duration) time.Time {
	if d.Cookie.Expires != nil {
		return *d.Cookie.Expires
	}
	if d.Cookie.OriginalMaxAge != nil {
		return now.Add(time.Duration(*d.Cookie.OriginalMaxAge) * time.Millisecond)
	}
	logging.Warnf("session has no cookie expiry; using default lifetime %s", fallback)
	return now.Add(fallback)
}

func encodeData(d *Data) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return string(b), nil
}

func decodeData(raw string) (*Data, error) {
	var d Data
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &d, nil
}
