package fetch

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func TestRequestKeyDistinguishesRequests(t *testing.T) {
	base := RequestKey("GET", "https://shop.example.com/a", nil)
	if RequestKey("get", "https://shop.example.com/a", nil) != base {
		t.Error("method case changed the key")
	}
	if RequestKey("POST", "https://shop.example.com/a", nil) == base {
		t.Error("method did not change the key")
	}
	if RequestKey("GET", "https://shop.example.com/b", nil) == base {
		t.Error("url did not change the key")
	}
	if RequestKey("GET", "https://shop.example.com/a", []byte(`{"q":1}`)) == base {
		t.Error("body did not change the key")
	}
}

func TestReplayTransportServesFixtures(t *testing.T) {
	transport := NewReplayTransport()
	transport.Record("GET", "https://shop.example.com/api/items", nil, Fixture{
		ContentType: "application/json",
		Body:        []byte(`{"items":[{"name":"acetone"}]}`),
	})

	client, err := NewClient(Config{
		BaseURL: "https://shop.example.com",
		Client:  &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	var out struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	if err := client.GetJSON(context.Background(), "/api/items", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Name != "acetone" {
		t.Fatalf("decoded %+v", out)
	}
}

func TestReplayTransportRejectsUnrecorded(t *testing.T) {
	client, _ := NewClient(Config{
		BaseURL: "https://shop.example.com",
		Client:  &http.Client{Transport: NewReplayTransport()},
	})
	_, err := client.Get(context.Background(), "/missing")
	if err == nil || !strings.Contains(err.Error(), "no fixture") {
		t.Fatalf("err = %v, want fixture miss", err)
	}
}

func TestReplayTransportMatchesPostBody(t *testing.T) {
	transport := NewReplayTransport()
	query := map[string]string{"q": "sodium"}
	transport.Record("POST", "https://shop.example.com/multi_search",
		[]byte(`{"q":"sodium"}`), Fixture{
			ContentType: "application/json",
			Body:        []byte(`{"found":3}`),
		})

	client, _ := NewClient(Config{
		BaseURL: "https://shop.example.com",
		Client:  &http.Client{Transport: transport},
	})
	var out struct {
		Found int `json:"found"`
	}
	if err := client.PostJSON(context.Background(), "/multi_search", query, &out); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if out.Found != 3 {
		t.Fatalf("found = %d, want 3", out.Found)
	}
}
