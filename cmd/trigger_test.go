package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTrigger(t *testing.T, handler http.HandlerFunc) (string, error) {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	var out bytes.Buffer
	cmd := newTriggerCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--addr", ts.URL + "/"})

	err := cmd.Execute()
	return out.String(), err
}

func TestTriggerCmd_Triggered(t *testing.T) {
	out, err := runTrigger(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/trigger", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"triggered","capture_id":"cap-1","expected":2}`))
	})
	require.NoError(t, err)
	assert.Contains(t, out, "撮影を開始しました: cap-1 (2 クライアント)")
}

func TestTriggerCmd_Skipped(t *testing.T) {
	out, err := runTrigger(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"status":"skipped","message":"no devices connected, trigger skipped"}`))
	})
	require.NoError(t, err)
	assert.Contains(t, out, "no devices connected")
}

func TestTriggerCmd_ServerError(t *testing.T) {
	_, err := runTrigger(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"boom"}`))
	})
	assert.ErrorContains(t, err, "boom")
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd(viper.New())

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "trigger")
}
