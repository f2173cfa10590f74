package ws

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"taxfolio/internal/log"
	"taxfolio/internal/storage"
)

func testHub() *Hub {
	return NewHub(log.New(log.Config{Level: slog.LevelError}))
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestHubBroadcastsJobUpdate(t *testing.T) {
	h := testHub()
	h.Start()
	defer h.Stop()

	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	// Registration happens after the upgrade response; let the hub loop
	// park the client before broadcasting.
	time.Sleep(50 * time.Millisecond)

	h.BroadcastJobUpdate(&storage.ExportJob{
		ID: "job-7", Format: "xlsx", Status: storage.JobCompleted, FilePath: "/tmp/out.xlsx",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg["type"] != "export_job" || msg["job_id"] != "job-7" || msg["status"] != storage.JobCompleted {
		t.Fatalf("unexpected update: %v", msg)
	}
	if msg["file"] != "/tmp/out.xlsx" {
		t.Fatalf("expected file path in update, got %v", msg)
	}
}

func TestHubClosesConnectionAfterStop(t *testing.T) {
	h := testHub()
	h.Start()
	h.Stop()

	srv := httptest.NewServer(h)
	defer srv.Close()

	// The handler must not block on a stopped hub; the connection is
	// closed instead of being parked forever.
	conn := dial(t, srv)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected closed connection after hub stop")
	}
}
