package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/workflow"
)

const defaultSubscriberBuffer = 64

// Hub 事件中心：按运行 ID 分发事件给订阅者
// Hub implements workflow.EventSink and fans events out per run id. A
// subscription for the empty run id receives every event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan workflow.Event]struct{}
	buffer int
	logger *zap.Logger
}

// NewHub creates an event hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]map[chan workflow.Event]struct{}),
		buffer: defaultSubscriberBuffer,
		logger: logger.With(zap.String("component", "event_hub")),
	}
}

// Subscribe registers for events of one run ("" for all runs). The returned
// cancel function must be called to release the subscription.
func (h *Hub) Subscribe(runID string) (<-chan workflow.Event, func()) {
	ch := make(chan workflow.Event, h.buffer)

	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[chan workflow.Event]struct{})
	}
	h.subs[runID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[runID], ch)
			if len(h.subs[runID]) == 0 {
				delete(h.subs, runID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish implements workflow.EventSink. Delivery is best-effort: a
// subscriber with a full buffer misses the event.
func (h *Hub) Publish(event workflow.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range []map[chan workflow.Event]struct{}{h.subs[event.RunID], h.subs[""]} {
		for sub := range ch {
			select {
			case sub <- event:
			default:
				h.logger.Debug("订阅者缓冲已满，丢弃事件 | subscriber buffer full, dropping event",
					zap.String("run_id", event.RunID),
					zap.String("type", string(event.Type)))
			}
		}
	}
}

// Subscribers returns the number of active subscriptions, for health output.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}
