package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_StartAndShutdown(t *testing.T) {
	config := DefaultConfig()
	config.Addr = "127.0.0.1:0" // ephemeral port

	m := NewManager(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), config, nil)

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())

	// second shutdown is a no-op
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_StartTwiceFails(t *testing.T) {
	config := DefaultConfig()
	config.Addr = "127.0.0.1:0"

	m := NewManager(http.NotFoundHandler(), config, nil)
	require.NoError(t, m.Start())
	defer m.Shutdown(context.Background())

	assert.Error(t, m.Start())
}

func TestManager_ClosedRejectsStart(t *testing.T) {
	config := DefaultConfig()
	config.Addr = "127.0.0.1:0"

	m := NewManager(http.NotFoundHandler(), config, nil)
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Error(t, m.Start())
}
