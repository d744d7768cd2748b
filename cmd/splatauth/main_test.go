package main

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func pipeInput(t *testing.T, input string) *os.File {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	_, err = w.WriteString(input)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return r
}

func TestReadRedirect(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"line", "npf71b963c1b7b6d119://auth#a=1&session_token_code=c\n", "npf71b963c1b7b6d119://auth#a=1&session_token_code=c"},
		{"no newline", "  npf71b963c1b7b6d119://auth#x  ", "npf71b963c1b7b6d119://auth#x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var prompt bytes.Buffer
			got, err := readRedirect(pipeInput(t, tt.input), &prompt, "https://accounts.example/authorize")
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Contains(t, prompt.String(), "https://accounts.example/authorize")
		})
	}
}

func TestReadRedirectEmptyInput(t *testing.T) {
	var prompt bytes.Buffer
	_, err := readRedirect(pipeInput(t, ""), &prompt, "https://accounts.example/authorize")
	require.Error(t, err)
}

func TestRunRejectsBadCommands(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"none", nil, "no command given"},
		{"unknown", []string{"refresh"}, `unknown command "refresh"`},
		{"token without kind", []string{"token"}, "usage: splatauth token"},
		{"token bad kind", []string{"token", "coral"}, "unknown token kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, os.Stdin, &stdout, &stderr)
			require.ErrorContains(t, err, tt.wantErr)
			require.Empty(t, stdout.String())
		})
	}
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--help"}, os.Stdin, &stdout, &stderr))
	require.Contains(t, stderr.String(), "usage: splatauth")
	require.Contains(t, stderr.String(), "--store")
}
