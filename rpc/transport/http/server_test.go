package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dJournal/lib/journal"
	"github.com/ValentinKolb/dJournal/lib/keyspace"
	"github.com/ValentinKolb/dJournal/rpc/transport/tcp"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *keyspace.Keyspace) {
	t.Helper()
	ks := keyspace.New(4)
	srv := httptest.NewServer(NewServer(NewLocalBackend(tcp.NewTCPPublisher(ks), ks), time.Second, true))
	t.Cleanup(srv.Close)
	return srv, ks
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "text/plain", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestServerScript(t *testing.T) {
	srv, ks := newTestServer(t)

	status, body := post(t, srv.URL+"/1", "SET a 1\nSELECT 3\nMULTI\nSET b \"two words\"\nEXEC\n")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "4\n", body)

	v, ok := ks.Get(1, "a")
	require.True(t, ok)
	require.Equal(t, "1", string(v))
	v, ok = ks.Get(3, "b")
	require.True(t, ok)
	require.Equal(t, "two words", string(v))
}

func TestServerErrors(t *testing.T) {
	srv, ks := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"InvalidDb", "/x", "SET a 1", http.StatusBadRequest},
		{"Syntax", "/0", "SET \"a 1", http.StatusBadRequest},
		{"UnknownCommand", "/0", "INCR a", http.StatusBadRequest},
		{"DbOutOfRange", "/9", "SET a 1", http.StatusBadRequest},
		{"UnterminatedMulti", "/0", "MULTI\nSET a 1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := post(t, srv.URL+tt.path, tt.body)
			require.Equal(t, tt.status, status)
		})
	}
	require.Zero(t, ks.Len(0))
}

func TestServerMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	post(t, srv.URL+"/0", "SET a 1")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(b), "djournal_http_scripts_total")
	require.Contains(t, string(b), "djournal_entries_written_total")
}

func TestClient(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	c, err := NewClient([]string{srv.URL + "/", srv.URL}, time.Second, 2)
	require.NoError(t, err)
	defer c.Close()

	n, err := c.Exec(ctx, 2, "SET k v\nAPPEND k w")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	v, ok, err := c.Get(ctx, 2, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "vw", string(v))

	_, ok, err = c.Get(ctx, 2, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = c.Get(ctx, 7, "k")
	require.Error(t, err)

	_, err = c.Exec(ctx, 0, "NOPE")
	require.ErrorContains(t, err, "400")

	_, err = NewClient(nil, time.Second, 1)
	require.Error(t, err)
}

func TestLocalBackend(t *testing.T) {
	ks := keyspace.New(1)
	b := NewLocalBackend(tcp.NewTCPPublisher(ks), ks)

	require.NoError(t, b.Append(context.Background(), journal.NewCommandEntry(0, "SET", []byte("a"), []byte("1"))))
	v, ok, err := b.Get(context.Background(), 0, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(v))

	_, _, err = b.Get(context.Background(), 1, "a")
	require.ErrorIs(t, err, keyspace.ErrInvalidDb)
}
