package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	docs  []Document
	err   error
	query string
	size  int
	index string
}

func (s *stubSource) FetchMetrics(_ context.Context, q string, n int) ([]Document, error) {
	s.index, s.query, s.size = "metrics", q, n
	return s.docs, s.err
}

func (s *stubSource) FetchLogs(_ context.Context, q string, n int) ([]Document, error) {
	s.index, s.query, s.size = "logs", q, n
	return s.docs, s.err
}

func TestLatestWaits(t *testing.T) {
	src := &stubSource{docs: []Document{{
		"@timestamp":     "2024-05-01T10:00:00Z",
		"mssql_instance": "SQL01",
		"wait_stats":     map[string]any{"type": "PAGEIOLATCH_SH", "time_ms": 1200.0, "tasks": 3.0},
	}}}
	svc := NewService(src)

	got, err := svc.LatestWaits(context.Background(), "SQL01", 50)
	require.NoError(t, err)
	assert.Equal(t, `mssql_instance:"SQL01"`, src.query)
	assert.Equal(t, 50, src.size)
	require.Len(t, got, 1)
	assert.Equal(t, "PAGEIOLATCH_SH", got[0].WaitType)
	assert.Equal(t, 1200.0, *got[0].WaitTimeMS)
	assert.Equal(t, "2024-05-01T10:00:00Z", got[0].Timestamp)

	_, err = svc.LatestWaits(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Equal(t, "*", src.query)
}

func TestBlockingSessions(t *testing.T) {
	src := &stubSource{docs: []Document{{
		"timestamp": "2024-05-01T10:00:00Z",
		"blocking": map[string]any{
			"session_id": 55.0, "blocking_session_id": 61.0,
			"wait_type": "LCK_M_X", "duration_ms": 9000.0, "query_text": "UPDATE t SET x = 1",
		},
	}}}
	svc := NewService(src)

	got, err := svc.BlockingSessions(context.Background(), "SQL02", 5)
	require.NoError(t, err)
	assert.Equal(t, `blocking.session_id:* AND mssql_instance:"SQL02"`, src.query)
	require.Len(t, got, 1)
	assert.Equal(t, 61.0, *got[0].BlockingSessionID)
	assert.Equal(t, "2024-05-01T10:00:00Z", got[0].Timestamp)

	_, err = svc.BlockingSessions(context.Background(), "", 5)
	require.NoError(t, err)
	assert.Equal(t, "blocking.session_id:*", src.query)
}

func TestRawLogs(t *testing.T) {
	src := &stubSource{docs: []Document{{"message": "deadlock"}}}
	got, err := NewService(src).RawLogs(context.Background(), "message:deadlock", 20)
	require.NoError(t, err)
	assert.Equal(t, "logs", src.index)
	assert.Equal(t, "deadlock", got[0]["message"])
}

func TestService_PropagatesErrors(t *testing.T) {
	boom := errors.New("cluster down")
	svc := NewService(&stubSource{err: boom})
	_, err := svc.LatestWaits(context.Background(), "", 1)
	assert.ErrorIs(t, err, boom)
	_, err = svc.BlockingSessions(context.Background(), "", 1)
	assert.ErrorIs(t, err, boom)
}

func TestNormalize_MissingFields(t *testing.T) {
	w := NormalizeWaitStats([]Document{{}})
	require.Len(t, w, 1)
	assert.Nil(t, w[0].WaitTimeMS)
	assert.Empty(t, w[0].WaitType)

	b := NormalizeBlocking([]Document{{"blocking": "garbage"}})
	require.Len(t, b, 1)
	assert.Nil(t, b[0].SessionID)
}
