package tasks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := DefaultConfig()
	cfg.Workers = 1

	client, err := NewClient(dbPath, cfg)
	require.NoError(t, err)
	require.NotNil(t, client)

	tasksDBPath := filepath.Join(tmpDir, "test-tasks.db")
	_, err = os.Stat(tasksDBPath)
	assert.NoError(t, err, "tasks database should be created alongside the main one")

	assert.NoError(t, client.Close())
}

func TestClientStartStop(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := DefaultConfig()
	cfg.Workers = 1

	client, err := NewClient(dbPath, cfg)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	assert.True(t, client.Stop(stopCtx), "stop should succeed gracefully")
}

type recordingExecutor struct {
	jobID    string
	document []byte
	err      error
}

func (e *recordingExecutor) Execute(_ context.Context, jobID string, document []byte) error {
	e.jobID = jobID
	e.document = document
	return e.err
}

func TestImportOPMLProcessor(t *testing.T) {
	exec := &recordingExecutor{}
	processor := ImportOPMLProcessor(exec)

	err := processor(context.Background(), ImportOPMLTask{JobID: "job-1", Document: []byte("<opml/>")})
	require.NoError(t, err)
	assert.Equal(t, "job-1", exec.jobID)
	assert.Equal(t, []byte("<opml/>"), exec.document)
}

func TestImportOPMLProcessorWrapsExecutorError(t *testing.T) {
	boom := errors.New("storage unavailable")
	processor := ImportOPMLProcessor(&recordingExecutor{err: boom})

	err := processor(context.Background(), ImportOPMLTask{JobID: "job-2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "job-2")
}

type stubPurger struct {
	deleted int64
	err     error
	calls   int
}

func (p *stubPurger) DeleteExpired(time.Time) (int64, error) {
	p.calls++
	return p.deleted, p.err
}

func TestPurgeValidationCacheProcessor(t *testing.T) {
	purger := &stubPurger{deleted: 3}
	processor := PurgeValidationCacheProcessor(purger)

	require.NoError(t, processor(context.Background(), PurgeValidationCacheTask{}))
	assert.Equal(t, 1, purger.calls)

	purger.err = errors.New("disk error")
	assert.Error(t, processor(context.Background(), PurgeValidationCacheTask{}))
}
