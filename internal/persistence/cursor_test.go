package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/gait/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := &domain.Cursor{
		CreatedAt: time.Date(2026, time.March, 12, 8, 30, 0, 123456789, time.UTC),
		ID:        "analysis-7",
	}

	encoded := EncodeCursor(cursor)
	require.NotEmpty(t, encoded)

	decoded, err := DecodeCursor(encoded)
	require.NoError(t, err)
	require.True(t, cursor.CreatedAt.Equal(decoded.CreatedAt))
	require.Equal(t, cursor.ID, decoded.ID)
}

func TestEncodeNilCursor(t *testing.T) {
	require.Empty(t, EncodeCursor(nil))
}

func TestDecodeEmptyCursor(t *testing.T) {
	decoded, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, decoded)
}

func TestDecodeMalformedCursor(t *testing.T) {
	_, err := DecodeCursor("not-base64!!!")
	require.Error(t, err)

	_, err = DecodeCursor("bm8tc2VwYXJhdG9y") // "no-separator"
	require.Error(t, err)
}
