package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	good, err := EncodeCursor(Cursor{CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), ID: "link-1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		cursor  string
		wantErr bool
	}{
		{name: "empty", cursor: ""},
		{name: "encoded", cursor: good},
		{name: "not base64", cursor: "!!not-a-cursor!!", wantErr: true},
		{name: "not json", cursor: base64.URLEncoding.EncodeToString([]byte("plain")), wantErr: true},
		{name: "no position", cursor: base64.URLEncoding.EncodeToString([]byte(`{}`)), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Pagination{Cursor: tt.cursor}.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestBuildCursorPageInfo(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	type row struct {
		ID string
		At time.Time
	}
	rows := []*row{{ID: "c", At: base.Add(2 * time.Minute)}, {ID: "b", At: base.Add(time.Minute)}, {ID: "a", At: base}}

	page, info := BuildCursorPageInfo(rows, 2, func(r *row) Cursor { return Cursor{CreatedAt: r.At, ID: r.ID} })
	require.Len(t, page, 2)
	require.True(t, info.HasMore)

	c, err := Pagination{Cursor: info.NextCursor}.DecodedCursor()
	require.NoError(t, err)
	require.Equal(t, "b", c.ID)
	require.True(t, c.CreatedAt.Equal(base.Add(time.Minute)))

	_, info = BuildCursorPageInfo(rows[:1], 2, func(r *row) Cursor { return Cursor{CreatedAt: r.At, ID: r.ID} })
	require.False(t, info.HasMore)
	require.Empty(t, info.NextCursor)
}
