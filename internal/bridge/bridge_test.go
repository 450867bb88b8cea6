package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerdrive/peerdrive-go/internal/drive"
	"github.com/peerdrive/peerdrive-go/internal/drivekey"
)

func testDrive(t *testing.T) *drive.Drive {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := drive.Open(drive.Backend{Kind: drive.KindVolatile}, drivekey.PublicKey{}, drive.Options{}, logger)
	t.Cleanup(func() { d.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Ready(ctx))

	return d
}

func testServer(t *testing.T, d *drive.Drive) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(NewHandler(d, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)

	return srv
}

func TestServeFile(t *testing.T) {
	d := testDrive(t)
	_, err := d.Put("/hello.txt", strings.NewReader("bridge content"))
	require.NoError(t, err)

	srv := testServer(t, d)

	resp, err := http.Get(srv.URL + "/hello.txt")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, d.Key().String(), resp.Header.Get("X-Drive-Key"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "bridge content", string(body))
}

func TestServeFileRange(t *testing.T) {
	d := testDrive(t)
	_, err := d.Put("/data.bin", strings.NewReader("0123456789"))
	require.NoError(t, err)

	srv := testServer(t, d)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/data.bin", nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=2-5")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(body))
}

func TestServeDirectoryListing(t *testing.T) {
	d := testDrive(t)
	for _, p := range []string{"/docs/a.txt", "/docs/sub/b.txt", "/top.txt"} {
		_, err := d.Put(p, strings.NewReader("x"))
		require.NoError(t, err)
	}

	srv := testServer(t, d)

	resp, err := http.Get(srv.URL + "/docs")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var listing []listingEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))

	names := make([]string, 0, len(listing))
	for _, e := range listing {
		names = append(names, e.Name)
	}

	assert.ElementsMatch(t, []string{"a.txt", "sub"}, names)
}

func TestNotFound(t *testing.T) {
	srv := testServer(t, testDrive(t))

	resp, err := http.Get(srv.URL + "/absent.txt")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := testServer(t, testDrive(t))

	resp, err := http.Post(srv.URL+"/x", "text/plain", strings.NewReader("nope"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestEventsWebsocket(t *testing.T) {
	d := testDrive(t)
	srv := testServer(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + EventsPath

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// Give the handler a beat to attach its change-feed subscription.
	time.Sleep(100 * time.Millisecond)

	_, err = d.Put("/pushed.txt", strings.NewReader("x"))
	require.NoError(t, err)

	var ev event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))

	assert.Equal(t, "put", ev.Kind)
	assert.Equal(t, "/pushed.txt", ev.Path)
	assert.Equal(t, uint64(1), ev.Version)
}
