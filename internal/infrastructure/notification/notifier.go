package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BillingEvent describes a billing lifecycle change worth telling the
// merchant about.
type BillingEvent struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	ShopDomain string    `json:"shop_domain"`
	Kind       string    `json:"kind"` // "activated", "payment_failed", "cancelled", "uninstalled"
}

// Notifier delivers billing notifications. Delivery is best effort; billing
// state never depends on it.
type Notifier interface {
	Notify(event BillingEvent)
	Close()
}

// LogNotifier writes notifications to the application log. It is the default
// sink when no external channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(event BillingEvent) {
	n.logger.Info("Billing notification",
		zap.String("kind", event.Kind),
		zap.String("tenant_id", event.TenantID.String()),
		zap.String("shop_domain", event.ShopDomain),
	)
}

func (n *LogNotifier) Close() {}

// Sender delivers a single notification to an external channel (email,
// in-app inbox). Implementations may block.
type Sender func(ctx context.Context, event BillingEvent) error

// NewWebhookSender returns a Sender that POSTs each event as JSON to the
// given URL. Any non-2xx response counts as a failed delivery.
func NewWebhookSender(url string, client *http.Client) Sender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context, event BillingEvent) error {
		body, err := json.Marshal(event)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("notification: webhook returned %d", resp.StatusCode)
		}
		return nil
	}
}

// AsyncNotifier queues notifications and delivers them on a background
// goroutine so webhook handling never waits on delivery. The queue is
// bounded; when it is full the event is dropped and logged.
type AsyncNotifier struct {
	sender    Sender
	logger    *zap.Logger
	queue     chan BillingEvent
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAsyncNotifier creates a notifier with the given queue size
func NewAsyncNotifier(sender Sender, queueSize int, logger *zap.Logger) *AsyncNotifier {
	if queueSize <= 0 {
		queueSize = 64
	}
	n := &AsyncNotifier{
		sender: sender,
		logger: logger,
		queue:  make(chan BillingEvent, queueSize),
	}
	n.wg.Add(1)
	go n.deliver()
	return n
}

// Notify enqueues the event without blocking.
func (n *AsyncNotifier) Notify(event BillingEvent) {
	select {
	case n.queue <- event:
	default:
		n.logger.Warn("Notification queue full, dropping event",
			zap.String("kind", event.Kind),
			zap.String("tenant_id", event.TenantID.String()),
		)
	}
}

// Close stops the delivery goroutine after draining queued events.
func (n *AsyncNotifier) Close() {
	n.closeOnce.Do(func() {
		close(n.queue)
	})
	n.wg.Wait()
}

func (n *AsyncNotifier) deliver() {
	defer n.wg.Done()
	for event := range n.queue {
		if err := n.sender(context.Background(), event); err != nil {
			n.logger.Error("Failed to deliver billing notification",
				zap.String("kind", event.Kind),
				zap.String("tenant_id", event.TenantID.String()),
				zap.Error(err),
			)
		}
	}
}
