package relay

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HTTP delivers payloads to remote ledger nodes over their release endpoint.
// Delivery is at-least-once from the receiver's perspective: operators may
// resubmit messages freely because the receiving pool deduplicates.
type HTTP struct {
	mu          sync.Mutex
	localDomain uint32
	endpoints   map[uint32]string
	client      *http.Client
	logger      *slog.Logger
}

// Envelope is the JSON body posted to the destination release endpoint.
type Envelope struct {
	SourceDomain uint32 `json:"sourceDomain"`
	Payload      string `json:"payload"`
}

// NewHTTP constructs a relay posting to the given per-domain base URLs.
func NewHTTP(localDomain uint32, endpoints map[uint32]string, logger *slog.Logger) *HTTP {
	if logger == nil {
		logger = slog.Default()
	}
	eps := make(map[uint32]string, len(endpoints))
	for domain, url := range endpoints {
		eps[domain] = url
	}
	return &HTTP{
		localDomain: localDomain,
		endpoints:   eps,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

// SetEndpoint records or replaces the base URL for a destination domain.
func (h *HTTP) SetEndpoint(domain uint32, url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endpoints[domain] = url
}

// Send posts the payload to the destination node. A non-2xx response is an
// error; the caller may resubmit later via the pool's outbox.
func (h *HTTP) Send(destDomain uint32, payload []byte) (string, error) {
	h.mu.Lock()
	endpoint, ok := h.endpoints[destDomain]
	h.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("relay: no endpoint configured for domain %d", destDomain)
	}
	body, err := json.Marshal(Envelope{SourceDomain: h.localDomain, Payload: hex.EncodeToString(payload)})
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	resp, err := h.client.Post(endpoint+"/v1/bridge/release", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("relay: delivery to domain %d failed: %w", destDomain, err)
	}
	defer resp.Body.Close()
	// Conflict means the destination already applied this message; from the
	// sender's perspective that is a successful delivery.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return "", fmt.Errorf("relay: destination %d rejected delivery with status %d", destDomain, resp.StatusCode)
	}
	h.logger.Info("relay delivered", "messageId", id, "destDomain", destDomain, "status", resp.StatusCode)
	return id, nil
}
