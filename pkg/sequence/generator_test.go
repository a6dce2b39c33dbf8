package sequence

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomGenerator_ReceiptBounded(t *testing.T) {
	g := NewRandomGenerator()
	longID := strings.Repeat("course-id-", 20)

	receipt, err := g.NextReceipt(context.Background(), longID)
	require.NoError(t, err)
	require.LessOrEqual(t, len(receipt), MaxReceiptLength)
	require.True(t, strings.HasPrefix(receipt, "rcpt_"))
}

func TestRandomGenerator_Unique(t *testing.T) {
	g := NewRandomGenerator()
	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		r, err := g.NextReceipt(context.Background(), "c1")
		require.NoError(t, err)
		_, dup := seen[r]
		require.False(t, dup)
		seen[r] = struct{}{}
	}
}

func TestTail(t *testing.T) {
	require.Equal(t, "B2C3", Tail("aa-b2c3", 4))
	require.Equal(t, "AB", Tail("ab", 4))
	require.Equal(t, "", Tail("---", 4))
}

func TestRandomAlphaNumeric_Alphabet(t *testing.T) {
	s, err := RandomAlphaNumeric(64)
	require.NoError(t, err)
	require.Len(t, s, 64)
	for _, c := range s {
		require.True(t, strings.ContainsRune(alphabet, c))
	}
}
