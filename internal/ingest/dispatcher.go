// Package ingest delivers analytics payloads to the ingestion API.
//
// Delivery is fire-and-forget: every Send method returns immediately, the
// request runs in the background, and failures are logged at debug level
// and dropped. Nothing is retried.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// KeyHeader carries the optional ingestion shared secret.
const KeyHeader = "X-Analytics-Key"

// sendTimeout bounds a single delivery so abandoned requests cannot pile up.
const sendTimeout = 10 * time.Second

// Dispatcher posts payloads to the ingestion endpoints.
type Dispatcher struct {
	baseURL   string
	ingestKey string
	client    *http.Client
	logger    *slog.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher for the analytics API at baseURL.
func NewDispatcher(baseURL, ingestKey string, client *http.Client, logger *slog.Logger) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Dispatcher{
		baseURL:   baseURL,
		ingestKey: ingestKey,
		client:    client,
		logger:    logger,
	}
}

func (d *Dispatcher) SendVisitStart(p VisitStart)   { d.emit(PathVisitStart, p) }
func (d *Dispatcher) SendVisitEnd(p VisitEnd)       { d.emit(PathVisitEnd, p) }
func (d *Dispatcher) SendPageView(p PageView)       { d.emit(PathPageView, p) }
func (d *Dispatcher) SendEvent(p Event)             { d.emit(PathEvent, p) }
func (d *Dispatcher) SendPerformance(p Performance) { d.emit(PathPerformance, p) }
func (d *Dispatcher) SendError(p ErrorReport)       { d.emit(PathError, p) }

// Flush waits for in-flight deliveries. It returns early with the context's
// error if ctx is done first; delivery failures are never reported.
func (d *Dispatcher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) emit(path string, payload any) {
	// Encode before returning so later mutations by the caller cannot leak in.
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Debug("Failed to encode analytics payload", slog.String("path", path), slog.Any("error", err))
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := d.post(ctx, path, body); err != nil {
			d.logger.Debug("Analytics delivery failed", slog.String("path", path), slog.Any("error", err))
		}
	}()
}

func (d *Dispatcher) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.ingestKey != "" {
		req.Header.Set(KeyHeader, d.ingestKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
