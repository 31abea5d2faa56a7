package relay

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestMemoryDeliversToRegisteredHandler(t *testing.T) {
	m := NewMemory(1, nil)
	var gotSource uint32
	var gotPayload []byte
	m.Register(2, func(source uint32, payload []byte) error {
		gotSource = source
		gotPayload = payload
		return nil
	})
	id, err := m.Send(2, []byte("hello"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id == "" {
		t.Fatal("expected a receipt")
	}
	if gotSource != 1 {
		t.Fatalf("handler saw source %d, want 1", gotSource)
	}
	if string(gotPayload) != "hello" {
		t.Fatalf("handler saw payload %q", gotPayload)
	}
}

func TestMemoryUnknownDomain(t *testing.T) {
	m := NewMemory(1, nil)
	if _, err := m.Send(7, []byte("x")); err == nil {
		t.Fatal("expected error for unregistered domain")
	}
}

func TestMemoryDuplicateDeliveries(t *testing.T) {
	m := NewMemory(1, nil)
	m.SetDuplicateDeliveries(2)
	var calls int32
	m.Register(2, func(uint32, []byte) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if _, err := m.Send(2, []byte("x")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 deliveries, got %d", calls)
	}
}

func TestMemorySendSucceedsWhenHandlerRejects(t *testing.T) {
	m := NewMemory(1, nil)
	m.Register(2, func(uint32, []byte) error { return errors.New("already applied") })
	if _, err := m.Send(2, []byte("x")); err != nil {
		t.Fatalf("handler rejection must not surface to the sender: %v", err)
	}
}

func TestHTTPSendPostsEnvelope(t *testing.T) {
	var envelope Envelope
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &envelope); err != nil {
			t.Errorf("bad envelope: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	h := NewHTTP(1, map[uint32]string{2: server.URL}, nil)
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	if _, err := h.Send(2, payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	if path != "/v1/bridge/release" {
		t.Fatalf("posted to %q", path)
	}
	if envelope.SourceDomain != 1 {
		t.Fatalf("source domain %d, want 1", envelope.SourceDomain)
	}
	if envelope.Payload != hex.EncodeToString(payload) {
		t.Fatalf("payload %q", envelope.Payload)
	}
}

func TestHTTPSendTreatsConflictAsDelivered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()
	h := NewHTTP(1, map[uint32]string{2: server.URL}, nil)
	if _, err := h.Send(2, []byte{0x01}); err != nil {
		t.Fatalf("conflict must count as delivered: %v", err)
	}
}

func TestHTTPSendSurfacesRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()
	h := NewHTTP(1, map[uint32]string{2: server.URL}, nil)
	if _, err := h.Send(2, []byte{0x01}); err == nil {
		t.Fatal("expected error for rejected delivery")
	}
}

func TestHTTPSendUnknownDomain(t *testing.T) {
	h := NewHTTP(1, nil, nil)
	if _, err := h.Send(9, []byte{0x01}); err == nil {
		t.Fatal("expected error for unconfigured domain")
	}
}
