package diary

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiary(t *testing.T) *Diary {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "diary.jsonl"))
	require.NoError(t, err)
	d.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return d
}

func TestAppendAndRecent(t *testing.T) {
	d := newTestDiary(t)
	require.NoError(t, d.Append(ActionBuy, "BTC", map[string]any{
		"side":           "long",
		"allocation_usd": 200.0,
		"setup_grade":    "B",
	}))
	require.NoError(t, d.Append(ActionHold, "ETH", map[string]any{"rationale": "no edge"}))

	entries, err := d.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "buy", entries[0]["action"])
	assert.Equal(t, "BTC", entries[0]["asset"])
	assert.Equal(t, "long", entries[0]["side"])
	assert.Equal(t, "2026-03-01T12:00:00Z", entries[0]["timestamp"])
	assert.Equal(t, "hold", entries[1]["action"])
}

func TestRecentLimitKeepsTail(t *testing.T) {
	d := newTestDiary(t)
	for _, asset := range []string{"BTC", "ETH", "SOL"} {
		require.NoError(t, d.Append(ActionHold, asset, nil))
	}
	entries, err := d.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ETH", entries[0]["asset"])
	assert.Equal(t, "SOL", entries[1]["asset"])
}

func TestRecentMissingFileIsEmpty(t *testing.T) {
	d, err := New(filepath.Join(t.TempDir(), "never-written.jsonl"))
	require.NoError(t, err)
	entries, err := d.Recent(5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecentSkipsCorruptLines(t *testing.T) {
	d := newTestDiary(t)
	require.NoError(t, d.Append(ActionCancelSpecific, "SOL", map[string]any{"order_id": "123"}))
	f, err := os.OpenFile(d.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{half a record\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, d.Append(ActionReconcileClose, "SOL", map[string]any{"reason": "no_position_no_orders"}))

	entries, err := d.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "cancel_specific", entries[0]["action"])
	assert.Equal(t, "reconcile_close", entries[1]["action"])
}
