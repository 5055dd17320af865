package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, h Handler) string {
	t.Helper()

	// unix socket paths are short; t.TempDir can exceed the limit on some hosts
	dir, err := os.MkdirTemp("", "vm")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "ctl.sock")
	srv, err := Listen(path, h)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return path
}

func TestSendRoundTrip(t *testing.T) {
	path := startServer(t, func(_ context.Context, req Request) Response {
		if req.Cmd == "ping" {
			return Response{OK: true, Text: "pong"}
		}
		return Fail("unknown command %q", req.Cmd)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := Send(ctx, path, Request{Cmd: "ping"})
	require.NoError(t, err)
	require.Equal(t, Response{OK: true, Text: "pong"}, resp)

	resp, err = Send(ctx, path, Request{Cmd: "reboot"})
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, `unknown command "reboot"`, resp.Error)
}

func TestServerRejectsGarbage(t *testing.T) {
	path := startServer(t, func(context.Context, Request) Response {
		return Response{OK: true, Text: "handled"}
	})

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not json\n"))
	require.NoError(t, err)

	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "bad request")
	require.NotContains(t, string(buf[:n]), "handled")
}

func TestSendWithoutServer(t *testing.T) {
	_, err := Send(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), Request{Cmd: "ping"})
	require.Error(t, err)
}

func TestListenReplacesStaleSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "vm")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "ctl.sock")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	srv, err := Listen(path, func(context.Context, Request) Response { return Response{OK: true} })
	require.NoError(t, err)
	require.Equal(t, path, srv.Addr())
	require.NoError(t, srv.ln.Close())
}
