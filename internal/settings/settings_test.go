package settings

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trophydeck/trophydeck-server/internal/validation"
)

const (
	validKey  = "0123456789abcdef0123456789abcdef"
	validUser = "76561198000000000"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	svc, err := NewService(dir, logger, validation.New())
	require.NoError(t, err)
	return svc, dir
}

func TestNewService_CreatesEmptyFile(t *testing.T) {
	svc, dir := newTestService(t)

	assert.Equal(t, Settings{}, svc.Get())
	assert.False(t, svc.Get().Configured())

	_, err := os.Stat(filepath.Join(dir, FileName))
	require.NoError(t, err)
}

func TestNewService_LoadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	content := `{"api_key":"` + validKey + `","user_id":"` + validUser + `"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o600))

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	svc, err := NewService(dir, logger, validation.New())
	require.NoError(t, err)

	got := svc.Get()
	assert.Equal(t, validKey, got.APIKey)
	assert.Equal(t, validUser, got.UserID)
	assert.True(t, got.Configured())
}

func TestSave(t *testing.T) {
	svc, dir := newTestService(t)

	var notified []Settings
	svc.OnChange(func(s Settings) { notified = append(notified, s) })

	want := Settings{APIKey: validKey, UserID: validUser}
	require.NoError(t, svc.Save(want))

	assert.Equal(t, want, svc.Get())
	require.Len(t, notified, 1)
	assert.Equal(t, want, notified[0])

	// Persisted to disk
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), validKey)

	// Saving identical settings is a no-op and does not notify again.
	require.NoError(t, svc.Save(want))
	assert.Len(t, notified, 1)
}

func TestSave_RejectsInvalid(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name     string
		settings Settings
	}{
		{"short api key", Settings{APIKey: "abc", UserID: validUser}},
		{"non-hex api key", Settings{APIKey: "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", UserID: validUser}},
		{"short user id", Settings{APIKey: validKey, UserID: "1234"}},
		{"non-numeric user id", Settings{APIKey: validKey, UserID: "76561198abc000000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Save(tt.settings)
			assert.Error(t, err)
			assert.NotEqual(t, tt.settings, svc.Get())
		})
	}
}

func TestReload(t *testing.T) {
	svc, dir := newTestService(t)

	var notified []Settings
	svc.OnChange(func(s Settings) { notified = append(notified, s) })

	// External edit
	content := `{"api_key":"` + validKey + `","user_id":"` + validUser + `"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o600))

	require.NoError(t, svc.Reload())
	assert.True(t, svc.Get().Configured())
	assert.Len(t, notified, 1)

	// Reload with unchanged content is a no-op.
	require.NoError(t, svc.Reload())
	assert.Len(t, notified, 1)
}

func TestReload_IgnoresInvalidEdit(t *testing.T) {
	svc, dir := newTestService(t)
	require.NoError(t, svc.Save(Settings{APIKey: validKey, UserID: validUser}))

	// A bad external edit must not clobber the in-memory state.
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{"api_key":"bad"}`), 0o600))
	require.NoError(t, svc.Reload())

	assert.Equal(t, validKey, svc.Get().APIKey)
}

func TestWatcher_PicksUpExternalEdit(t *testing.T) {
	svc, dir := newTestService(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	changed := make(chan Settings, 1)
	svc.OnChange(func(s Settings) { changed <- s })

	w, err := NewWatcher(svc, logger)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	content := `{"api_key":"` + validKey + `","user_id":"` + validUser + `"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o600))

	select {
	case got := <-changed:
		assert.True(t, got.Configured())
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not pick up the external edit")
	}
}
