package webhost

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second

type staticProvider map[string]string

func (p staticProvider) Content(uri host.URI) (string, bool) {
	text, ok := p[uri.Path]
	return text, ok
}

func newServer(t *testing.T) (*Host, *httptest.Server) {
	t.Helper()
	h := New()
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, h *Host, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	before := h.Clients()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	testutil.WaitForCount(t, wait, h.Clients, before+1)
	return conn
}

// next reads frames until one with op arrives
func next(t *testing.T, conn *websocket.Conn, op string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", op)
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Op == op {
			return f
		}
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, f frame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(f))
}

func TestHealth(t *testing.T) {
	_, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "healthy", status["status"])
	assert.Equal(t, "dark", status["theme"])
}

func TestShellPage(t *testing.T) {
	_, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "new WebSocket")
}

func TestDocumentEndpoint(t *testing.T) {
	h, srv := newServer(t)
	h.RegisterDocumentProvider("preview", staticProvider{"sample.cpp": "int x;\n"})

	resp, err := http.Get(srv.URL + "/doc?uri=preview:sample.cpp")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "int x;\n", string(body))

	resp, err = http.Get(srv.URL + "/doc?uri=preview:missing.cpp")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/doc?uri=garbage")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFileEndpointServesOnlyOpenedFiles(t *testing.T) {
	h, srv := newServer(t)
	path := filepath.Join(t.TempDir(), ".clang-format")
	require.NoError(t, os.WriteFile(path, []byte("IndentWidth: 2\n"), 0o644))

	conn := dial(t, h, srv)
	require.NoError(t, h.OpenFile(context.Background(), path))
	f := next(t, conn, opOpenFile)
	assert.Equal(t, path, f.Path)

	resp, err := http.Get(srv.URL + "/file?id=" + f.ID)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "IndentWidth: 2\n", string(body))

	resp, err = http.Get(srv.URL + "/file?id=unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Error(t, h.OpenFile(context.Background(), filepath.Join(t.TempDir(), "missing")))
}

func TestSnapshotReplayedOnConnect(t *testing.T) {
	h, srv := newServer(t)
	ctx := context.Background()
	h.RegisterDocumentProvider("preview", staticProvider{"sample.cpp": "int x;\n"})

	p, err := h.CreatePanel(ctx, host.PanelOptions{ViewType: "editor", Title: "Editor", Column: host.ColumnOne})
	require.NoError(t, err)
	p.SetHTML("<p>hello</p>")
	uri := host.URI{Scheme: "preview", Path: "sample.cpp"}
	_, err = h.ShowDocument(ctx, uri, host.ShowOptions{Column: host.ColumnBeside})
	require.NoError(t, err)

	conn := dial(t, h, srv)
	assert.Equal(t, "dark", next(t, conn, opTheme).Theme)
	created := next(t, conn, opPanelCreate)
	assert.Equal(t, p.ID(), created.ID)
	assert.Equal(t, "<p>hello</p>", created.HTML)
	shown := next(t, conn, opDocShow)
	assert.Equal(t, uri.String(), shown.URI)
	assert.Equal(t, host.ColumnTwo, shown.Column)
}

func TestPanelRoundTrip(t *testing.T) {
	h, srv := newServer(t)
	conn := dial(t, h, srv)

	p, err := h.CreatePanel(context.Background(), host.PanelOptions{ViewType: "editor", Title: "Editor"})
	require.NoError(t, err)
	next(t, conn, opPanelCreate)

	received := make(chan string, 1)
	p.OnDidReceiveMessage(func(raw []byte) { received <- string(raw) })

	require.NoError(t, p.PostMessage(map[string]string{"type": "initialize"}))
	posted := next(t, conn, opPanelPost)
	assert.JSONEq(t, `{"type":"initialize"}`, string(posted.Message))

	sendFrame(t, conn, frame{Op: opPanelMessage, ID: p.ID(), Message: json.RawMessage(`{"type":"webviewReady"}`)})
	select {
	case raw := <-received:
		assert.JSONEq(t, `{"type":"webviewReady"}`, raw)
	case <-time.After(wait):
		t.Fatal("panel message not delivered")
	}
}

func TestPanelVisibilityAndClose(t *testing.T) {
	h, srv := newServer(t)
	conn := dial(t, h, srv)

	p, err := h.CreatePanel(context.Background(), host.PanelOptions{ViewType: "editor"})
	require.NoError(t, err)

	var hidden, disposed atomic.Int32
	p.OnDidChangeViewState(func(visible bool) {
		if !visible {
			hidden.Add(1)
		}
	})
	p.OnDidDispose(func() { disposed.Add(1) })

	off := false
	sendFrame(t, conn, frame{Op: opPanelVisible, ID: p.ID(), Visible: &off})
	testutil.WaitForCount(t, wait, func() int { return int(hidden.Load()) }, 1)
	assert.False(t, p.Visible())

	sendFrame(t, conn, frame{Op: opPanelClosed, ID: p.ID()})
	testutil.WaitForCount(t, wait, func() int { return int(disposed.Load()) }, 1)
	assert.Empty(t, h.Panels())
	assert.ErrorIs(t, p.PostMessage("late"), ErrPanelDisposed)

	p.Dispose()
	assert.Equal(t, int32(1), disposed.Load())
}

func TestTabClosedByBrowser(t *testing.T) {
	h, srv := newServer(t)
	h.RegisterDocumentProvider("preview", staticProvider{"sample.cpp": "int x;\n"})
	conn := dial(t, h, srv)

	uri := host.URI{Scheme: "preview", Path: "sample.cpp"}
	_, err := h.ShowDocument(context.Background(), uri, host.ShowOptions{})
	require.NoError(t, err)
	require.True(t, h.IsDocumentOpen(uri))

	closed := make(chan []host.URI, 1)
	h.OnTabsClosed(func(uris []host.URI) { closed <- uris })

	sendFrame(t, conn, frame{Op: opTabClosed, URI: uri.String()})
	select {
	case uris := <-closed:
		assert.Equal(t, []host.URI{uri}, uris)
	case <-time.After(wait):
		t.Fatal("tab close not reported")
	}
	assert.False(t, h.IsDocumentOpen(uri))
	assert.Empty(t, h.Tabs())
}

func TestShowDocumentRequiresContent(t *testing.T) {
	h := New()
	ctx := context.Background()

	_, err := h.ShowDocument(ctx, host.URI{Scheme: "preview", Path: "x"}, host.ShowOptions{})
	assert.Error(t, err)

	h.RegisterDocumentProvider("preview", staticProvider{})
	_, err = h.ShowDocument(ctx, host.URI{Scheme: "preview", Path: "x"}, host.ShowOptions{})
	assert.Error(t, err)
}

func TestShowDocumentReusesTab(t *testing.T) {
	h := New()
	h.RegisterDocumentProvider("preview", staticProvider{"a": "a"})
	uri := host.URI{Scheme: "preview", Path: "a"}

	first, err := h.ShowDocument(context.Background(), uri, host.ShowOptions{})
	require.NoError(t, err)
	second, err := h.ShowDocument(context.Background(), uri, host.ShowOptions{})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.Len(t, h.Tabs(), 1)
	assert.True(t, h.Tabs()[0].Active)
}

func TestPickFile(t *testing.T) {
	t.Run("no browser uses default", func(t *testing.T) {
		h := New()
		path, err := h.PickFile(context.Background(), host.PickOptions{DefaultPath: "/tmp/x"})
		require.NoError(t, err)
		assert.Equal(t, "/tmp/x", path)

		_, err = h.PickFile(context.Background(), host.PickOptions{})
		assert.ErrorIs(t, err, host.ErrCancelled)
	})

	t.Run("browser answers", func(t *testing.T) {
		h, srv := newServer(t)
		conn := dial(t, h, srv)

		result := make(chan string, 1)
		go func() {
			path, _ := h.PickFile(context.Background(), host.PickOptions{Title: "Import"})
			result <- path
		}()

		pick := next(t, conn, opPick)
		assert.Equal(t, "Import", pick.Title)
		sendFrame(t, conn, frame{Op: opPickResult, ID: pick.ID, Path: "/work/.clang-format"})

		select {
		case path := <-result:
			assert.Equal(t, "/work/.clang-format", path)
		case <-time.After(wait):
			t.Fatal("pick result not delivered")
		}
	})

	t.Run("browser cancels", func(t *testing.T) {
		h, srv := newServer(t)
		conn := dial(t, h, srv)

		errs := make(chan error, 1)
		go func() {
			_, err := h.PickFile(context.Background(), host.PickOptions{})
			errs <- err
		}()
		pick := next(t, conn, opPick)
		sendFrame(t, conn, frame{Op: opPickResult, ID: pick.ID})

		select {
		case err := <-errs:
			assert.ErrorIs(t, err, host.ErrCancelled)
		case <-time.After(wait):
			t.Fatal("pick cancel not delivered")
		}
	})

	t.Run("context ends wait", func(t *testing.T) {
		h, srv := newServer(t)
		dial(t, h, srv)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := h.PickFile(ctx, host.PickOptions{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestThemeFromBrowser(t *testing.T) {
	h, srv := newServer(t)
	conn := dial(t, h, srv)

	themes := make(chan host.Theme, 2)
	h.OnThemeChanged(func(theme host.Theme) { themes <- theme })

	sendFrame(t, conn, frame{Op: opTheme, Theme: "neon"})
	sendFrame(t, conn, frame{Op: opTheme, Theme: "light"})

	select {
	case theme := <-themes:
		assert.Equal(t, host.ThemeLight, theme)
	case <-time.After(wait):
		t.Fatal("theme change not reported")
	}
	assert.Equal(t, host.ThemeLight, h.Theme())
}

func TestNotificationsBroadcast(t *testing.T) {
	h, srv := newServer(t)
	conn := dial(t, h, srv)

	h.ShowError("save failed")
	f := next(t, conn, opNotify)
	assert.Equal(t, "error", f.Level)
	assert.Equal(t, "save failed", f.Text)
}

func TestStartAndShutdown(t *testing.T) {
	h := New()
	url, err := h.Start("127.0.0.1", 0)
	require.NoError(t, err)
	assert.Equal(t, url, h.URL())

	_, err = h.Start("127.0.0.1", 0)
	assert.Error(t, err)

	resp, err := http.Get(url + "health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
	assert.Empty(t, h.URL())
	require.NoError(t, h.Shutdown(ctx))
}
