package decisionlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helix/internal/decision"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.Insert(ctx, Record{Timestamp: 100, TraceID: "t1", Stage: "main", Model: "m", RawOutput: "{}"})
	require.NoError(t, err)
	id2, err := s.Insert(ctx, Record{Timestamp: 200, TraceID: "t2", Stage: "sanitizer", Model: "m2", ParseError: "boom"})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	recs, err := s.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	// 时间倒序
	assert.Equal(t, "t2", recs[0].TraceID)
	assert.Equal(t, "boom", recs[0].ParseError)
	assert.Equal(t, "t1", recs[1].TraceID)
}

func TestListPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		_, err := s.Insert(ctx, Record{Timestamp: i * 100, TraceID: "t", Stage: "main"})
		require.NoError(t, err)
	}
	page, err := s.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(300), page[0].Timestamp)
	assert.Equal(t, int64(200), page[1].Timestamp)
}

func TestInsertEngineRecordSerializesResult(t *testing.T) {
	s := newTestStore(t)
	rec := decision.Record{
		TraceID:   "trace",
		Stage:     "main",
		Model:     "m",
		RawOutput: "raw",
		Result: &decision.Result{
			Reasoning: "ok",
			Decisions: []decision.TradeDecision{{Asset: "BTC", Action: "buy", AllocationUSD: 50}},
		},
	}
	_, err := s.InsertEngineRecord(context.Background(), rec)
	require.NoError(t, err)

	recs, err := s.List(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].DecisionsJSON, `"BTC"`)
	assert.Contains(t, recs[0].DecisionsJSON, `"buy"`)
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())
	_, err := s.Insert(context.Background(), Record{Stage: "main"})
	assert.Error(t, err)
}
