package apihttp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func dialSocket(t *testing.T, ts *httptest.Server, path string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	return websocket.DefaultDialer.Dial(wsURL, nil)
}

func TestSearchSocketStreamsEvents(t *testing.T) {
	fake := &fakeSearchService{}
	server := NewServer(fake)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	conn, resp, err := dialSocket(t, ts, "/search/ws?q=acetone&suppliers=onyxmet")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	types := make([]string, 0, 4)
	var summary *socketMessage
	for {
		var message socketMessage
		if err := conn.ReadJSON(&message); err != nil {
			break
		}
		types = append(types, message.Type)
		if message.Type == "done" {
			summary = &message
			break
		}
	}

	want := []string{"product", "supplier", "done"}
	if len(types) != len(want) {
		t.Fatalf("unexpected event types: %v", types)
	}
	for index, eventType := range want {
		if types[index] != eventType {
			t.Fatalf("event %d: expected %q, got %q (all: %v)", index, eventType, types[index], types)
		}
	}
	if summary == nil || summary.Summary == nil {
		t.Fatalf("done message should carry the search summary")
	}
	if !summary.Summary.Final {
		t.Fatalf("summary should be marked final")
	}
	if fake.callCount < 1 {
		t.Fatalf("expected at least 1 SearchStream call, got %d", fake.callCount)
	}
}

func TestSearchSocketRejectsMissingQuery(t *testing.T) {
	fake := &fakeSearchService{}
	server := NewServer(fake)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	conn, resp, err := dialSocket(t, ts, "/search/ws")
	if err == nil {
		conn.Close()
		t.Fatalf("expected the handshake to fail")
	}
	if resp == nil {
		t.Fatalf("expected an HTTP response with the rejection")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if fake.callCount != 0 {
		t.Fatalf("expected no service calls, got %d", fake.callCount)
	}
}
