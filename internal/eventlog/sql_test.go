package eventlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/babycam/internal/config"
)

func TestSQLStore_AppendList(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(ctx, sampleEvent("evt_1", "sleep")))
	require.NoError(t, s.Append(ctx, sampleEvent("evt_2", "distress")))

	events, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt_1", events[0].EventID)
	assert.Equal(t, "distress", events[1].Type)
	assert.JSONEq(t, `{"duration_min":45}`, string(events[0].Data))
	assert.True(t, events[0].Timestamp.Equal(sampleEvent("", "").Timestamp))
}

func TestSQLStore_DuplicateIDRejected(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(ctx, sampleEvent("evt_1", "sleep")))
	assert.ErrorIs(t, s.Append(ctx, sampleEvent("evt_1", "sleep")), ErrDuplicateID)
}

func TestSQLStore_EmptyPayloadsBecomeObjects(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite("")
	require.NoError(t, err)
	defer s.Close()

	e := sampleEvent("evt_1", "feeding")
	e.Data, e.Environment = nil, nil
	require.NoError(t, s.Append(ctx, e))

	events, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, "{}", string(events[0].Data))
	assert.JSONEq(t, "{}", string(events[0].Environment))
}

func TestSQLStore_PersistsToFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, sampleEvent("evt_1", "sleep")))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()
	events, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestOpen_Backends(t *testing.T) {
	dir := t.TempDir()

	js, err := Open(config.EventLogConfig{Backend: "json", Path: filepath.Join(dir, "h.json")})
	require.NoError(t, err)
	assert.IsType(t, &JSONFileStore{}, js)
	js.Close()

	db, err := Open(config.EventLogConfig{Backend: "sqlite", Path: filepath.Join(dir, "h.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, db)
	db.Close()

	_, err = Open(config.EventLogConfig{Backend: "csv", Path: "x"})
	assert.Error(t, err)
}
