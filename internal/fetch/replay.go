package fetch

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Fixture is one recorded supplier response.
type Fixture struct {
	Status      int
	ContentType string
	Body        []byte
}

// ReplayTransport serves recorded responses addressed by request hash.
// Tests install it as the http.Client transport to replay supplier
// traffic without the network; an unrecorded request is a hard error so
// fixture drift surfaces immediately.
type ReplayTransport struct {
	mu       sync.RWMutex
	fixtures map[string]Fixture
}

func NewReplayTransport() *ReplayTransport {
	return &ReplayTransport{fixtures: make(map[string]Fixture)}
}

func (t *ReplayTransport) Record(method, rawurl string, body []byte, fx Fixture) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fixtures[RequestKey(method, rawurl, body)] = fx
}

func (t *ReplayTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		payload, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		body = payload
	}

	key := RequestKey(req.Method, req.URL.String(), body)
	t.mu.RLock()
	fx, ok := t.fixtures[key]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("replay: no fixture for %s %s", req.Method, req.URL)
	}

	status := fx.Status
	if status == 0 {
		status = http.StatusOK
	}
	header := make(http.Header)
	if fx.ContentType != "" {
		header.Set("Content-Type", fx.ContentType)
	}
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(fx.Body)),
		ContentLength: int64(len(fx.Body)),
		Request:       req,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
	}, nil
}
