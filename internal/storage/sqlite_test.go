package storage

import (
	"testing"
	"time"

	"github.com/rusenback/dockersmoke/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id string, startedAt time.Time, outcome model.Outcome) *model.RunRecord {
	return &model.RunRecord{
		ID:        id,
		Archive:   "/tmp/neo4j.tar",
		ImageID:   "sha256:abc",
		User:      "ci",
		StartedAt: startedAt,
		Duration:  1500 * time.Millisecond,
		Outcome:   outcome,
	}
}

func TestRecordFlushesOnClose(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStorage(dir)
	require.NoError(t, err)

	now := time.Now()
	failed := record("run-2", now, model.OutcomeFailed)
	failed.FailedStage = model.StageProbe
	failed.Error = "GET http://localhost:1/: expected HTTP 200, got 500"
	failed.StatusCode = 500
	failed.HostPort = 49153

	s.Record(record("run-1", now.Add(-time.Minute), model.OutcomePassed))
	s.Record(failed)
	require.NoError(t, s.Close())

	s, err = NewStorage(dir)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "run-2", runs[0].ID, "newest first")
	assert.Equal(t, model.OutcomeFailed, runs[0].Outcome)
	assert.Equal(t, model.StageProbe, runs[0].FailedStage)
	assert.Equal(t, 500, runs[0].StatusCode)
	assert.Equal(t, 49153, runs[0].HostPort)
	assert.Equal(t, 1500*time.Millisecond, runs[0].Duration)
	assert.Equal(t, now.UnixMilli(), runs[0].StartedAt.UnixMilli())

	assert.Equal(t, "run-1", runs[1].ID)
	assert.True(t, runs[1].Passed())
}

func TestSinceAndRetention(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStorage(dir)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, s.batchWrite([]*model.RunRecord{
		record("recent", now.Add(-10*time.Minute), model.OutcomePassed),
		record("hours-ago", now.Add(-3*time.Hour), model.OutcomePassed),
		record("ancient", now.Add(-60*24*time.Hour), model.OutcomeFailed),
	}))

	runs, err := s.Since(Range30Min)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "recent", runs[0].ID)

	runs, err = s.Since(Range6Hour)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	deleted, err := s.deleteBefore(now.Add(-retention))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	runs, err = s.Recent(10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	require.NoError(t, s.Close())
}

func TestOpenExpiresOldRecords(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStorage(dir)
	require.NoError(t, err)

	now := time.Now()
	s.Record(record("old", now.Add(-90*24*time.Hour), model.OutcomePassed))
	s.Record(record("new", now.Add(-time.Hour), model.OutcomePassed))
	require.NoError(t, s.Close())

	s, err = NewStorage(dir)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)
}

func TestParseTimeRange(t *testing.T) {
	for r := Range30Min; r <= Range1Week; r++ {
		parsed, err := ParseTimeRange(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}

	_, err := ParseTimeRange("forever")
	assert.Error(t, err)
}
