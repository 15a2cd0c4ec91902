package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 890, time.UTC)
	c, err := DecodeCursor(EncodeCursor("site-1", ts))
	require.NoError(t, err)

	assert.Equal(t, "site-1", c.LastID)
	assert.True(t, ts.Equal(c.Timestamp))
}

func TestDecodeCursor(t *testing.T) {
	c, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, c)

	for _, bad := range []string{"%%%", "bm8tcGlwZQ", "YmFkfA"} {
		_, err := DecodeCursor(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

func TestEncodeCursor_EmptyID(t *testing.T) {
	assert.Empty(t, EncodeCursor("", time.Now()))
}

func TestTrim(t *testing.T) {
	type row struct {
		id string
		at time.Time
	}
	now := time.Now().UTC()
	rows := []row{{"a", now}, {"b", now.Add(-time.Second)}, {"c", now.Add(-2 * time.Second)}}
	key := func(r row) (string, time.Time) { return r.id, r.at }

	page := Trim(rows, 2, key)
	assert.True(t, page.HasMore)
	assert.Len(t, page.Items, 2)

	c, err := DecodeCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "b", c.LastID)

	page = Trim(rows, 5, key)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)
	assert.Len(t, page.Items, 3)
}
