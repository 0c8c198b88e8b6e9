package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func useFileDB(t *testing.T) {
	t.Helper()
	t.Setenv("LOG_MODE", "production")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "aw.db"))
	t.Setenv("REDIS_ADDR", "")
}

func TestMigrateAndEnqueue(t *testing.T) {
	useFileDB(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "Schema up to date")

	out, err = run(t, "enqueue", "assignment", "--channel", "c1", "--avatar", "a1")
	require.NoError(t, err)
	require.Contains(t, out, "Inserted 1")

	out, err = run(t, "enqueue", "assignment", "--channel", "c1", "--avatar", "a1")
	require.NoError(t, err)
	require.Contains(t, out, "Inserted 0", "active assignment for the same triple is skipped")

	out, err = run(t, "enqueue", "video", "a lighthouse at dusk", "--notify", "c1")
	require.NoError(t, err)
	require.Contains(t, out, "Queued video job")
}

func TestEnqueueAssignmentValidation(t *testing.T) {
	useFileDB(t)
	_, err := run(t, "enqueue", "assignment", "--channel", "c1")
	require.ErrorContains(t, err, "--avatar")

	_, err = run(t, "enqueue", "assignment", "--channel", "c1", "--avatar", "a", "--payload", "{nope")
	require.ErrorContains(t, err, "payload")

	_, err = run(t, "enqueue", "assignment", "--channel", "c1", "--avatar", "a", "--type", "dance")
	require.ErrorContains(t, err, "unknown assignment type")
}
