package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// DefaultLimit is used when a caller asks for zero or fewer rows.
const DefaultLimit = 20

// Cursor is a decoded keyset position over (created_at, id).
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// Page is one keyset page of results.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

var ErrInvalidCursor = errors.New("invalid cursor format")

// EncodeCursor encodes the position after the given row.
func EncodeCursor(lastID string, timestamp time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := timestamp.UTC().Format(time.RFC3339Nano) + "|" + lastID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor returns nil for an empty cursor.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	ts, id, ok := strings.Cut(string(decoded), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{LastID: id, Timestamp: timestamp}, nil
}

// Trim cuts a limit+1 result set down to limit and fills in the next cursor.
func Trim[T any](items []T, limit int, key func(T) (string, time.Time)) Page[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	page := Page[T]{Items: items, HasMore: hasMore}
	if hasMore && len(items) > 0 {
		id, ts := key(items[len(items)-1])
		page.NextCursor = EncodeCursor(id, ts)
	}
	return page
}
