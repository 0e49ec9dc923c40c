package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 123, time.FixedZone("ICT", 7*3600)), ID: uuid.New()}
	token := EncodeCursor(cursor)
	require.NotContains(t, token, "=")

	parsed, err := ParseCursor(token)
	require.NoError(t, err)
	require.True(t, parsed.CreatedAt.Equal(cursor.CreatedAt))
	require.Equal(t, cursor.ID, parsed.ID)
}

func TestParseCursorRejectsForeignTokens(t *testing.T) {
	_, err := ParseCursor("not-base64!")
	require.ErrorIs(t, err, ErrInvalidCursor)

	_, err = ParseCursor(EncodeCursor(Cursor{}))
	require.ErrorIs(t, err, ErrInvalidCursor)

	c, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(1000))
	require.Equal(t, 7, NormalizeLimit(7))
}

func TestTrimEmitsNextCursorOnlyWhenMoreRows(t *testing.T) {
	type row struct {
		id uuid.UUID
		at time.Time
	}
	now := time.Now().UTC()
	rows := []row{{uuid.New(), now}, {uuid.New(), now.Add(-time.Minute)}, {uuid.New(), now.Add(-2 * time.Minute)}}
	cursorOf := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page := Trim(rows, 2, cursorOf)
	require.Len(t, page.Items, 2)
	next, err := ParseCursor(page.NextCursor)
	require.NoError(t, err)
	require.Equal(t, rows[1].id, next.ID)

	last := Trim(rows[:1], 2, cursorOf)
	require.Len(t, last.Items, 1)
	require.Empty(t, last.NextCursor)
	require.NotNil(t, Trim[row](nil, 2, cursorOf).Items)
}

type ledgerRow struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time
}

func TestKeysetWalksEveryRowOnce(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:pagination_keyset?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledgerRow{}))

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		// Rows 1 and 2 share a timestamp so the id tiebreak is exercised.
		at := base.Add(time.Duration(i) * time.Minute)
		if i == 2 {
			at = base.Add(time.Minute)
		}
		require.NoError(t, db.Create(&ledgerRow{ID: uuid.New(), CreatedAt: at}).Error)
	}

	seen := map[uuid.UUID]bool{}
	params := Params{Limit: 2}
	for pages := 0; pages < 5; pages++ {
		keyset, err := Keyset(params, "")
		require.NoError(t, err)
		var rows []ledgerRow
		require.NoError(t, db.Scopes(keyset).Find(&rows).Error)
		page := Trim(rows, params.Limit, func(r ledgerRow) Cursor { return Cursor{CreatedAt: r.CreatedAt, ID: r.ID} })
		for _, r := range page.Items {
			require.False(t, seen[r.ID], "row %s returned twice", r.ID)
			seen[r.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		params.Cursor = page.NextCursor
	}
	require.Len(t, seen, 5)

	_, err = Keyset(Params{Cursor: "%%%"}, "w")
	require.ErrorIs(t, err, ErrInvalidCursor)
}
