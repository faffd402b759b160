package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ogas1024/chat-room/internal/presence"
	"github.com/ogas1024/chat-room/internal/registry"
	"github.com/ogas1024/chat-room/internal/room"
)

func TestStatusEndpoints(t *testing.T) {
	reg := registry.New(8, presence.NewClock())
	rooms := room.NewManager("general", 16)
	srv := httptest.NewServer(NewHandler(reg, rooms).Router())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/status", "/status/rooms"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status error = %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Data struct {
			Connections int `json:"connections"`
			Rooms       int `json:"rooms"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode status body: %v", err)
	}
	if body.Data.Rooms != 1 {
		t.Errorf("rooms = %d, want the default room only", body.Data.Rooms)
	}
}
