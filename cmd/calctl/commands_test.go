package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) {
	t.Setenv("CALENDAR_PROVIDER", "memory")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "calctl.db"))
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("LOG_LEVEL", "error")
}

func TestGrantCreatesAppCalendar(t *testing.T) {
	setupEnv(t)
	t.Setenv("APP_CALENDAR_NAME", "Bridge")

	out, err := run(t, "grant")
	require.NoError(t, err)
	assert.Contains(t, out, `calendar "Bridge" created`)
}

func TestCalendarsLists(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "calendars")
	require.NoError(t, err)
	assert.Contains(t, out, "SELECTED")
	assert.Regexp(t, `\[ \]\s+Calendar\s`, out)
}

func TestSelectAndUnselect(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "select", "calendar")
	require.NoError(t, err)
	assert.Contains(t, out, "selected Calendar")

	_, err = run(t, "select", "Nope")
	assert.Error(t, err)

	out, err = run(t, "unselect", "Calendar")
	require.NoError(t, err)
	assert.Contains(t, out, "unselected Calendar")

	_, err = run(t, "unselect", "Calendar")
	assert.Error(t, err)
}

func TestEventsEmpty(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "events", "--days", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "no events")
}
