package slogx_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/splatauth/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestTransportLogsRequests(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client := &http.Client{Transport: slogx.NewTransport(nil, logger)}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/connect?state=secret", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	out := buf.String()
	require.Contains(t, out, `"msg":"http_request"`)
	require.Contains(t, out, `"status":418`)
	require.Contains(t, out, `"path":"/connect"`)
	require.Contains(t, out, `"req_id"`)
	require.NotContains(t, out, "secret")
}

func TestTransportPrefersContextLogger(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	var base, scoped bytes.Buffer
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	client := &http.Client{Transport: slogx.NewTransport(nil, slog.New(slog.NewJSONHandler(&base, opts)))}

	ctx := slogx.WithContext(context.Background(), slog.New(slog.NewJSONHandler(&scoped, opts)))
	ctx = slogx.WithRegenID(ctx, "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Empty(t, base.String())
	require.Contains(t, scoped.String(), `"regen_id":"01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV"`)
}

func TestNewWritesServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{
		Service: "splatauth",
		Version: "v0.0.0-test",
		Env:     "test",
		Level:   "warn",
		Format:  "json",
		Output:  &buf,
	})

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	require.NotContains(t, out, "dropped")
	require.Contains(t, out, `"service":"splatauth"`)
	require.Contains(t, out, `"env":"test"`)
}
