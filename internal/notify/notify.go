// Package notify fans Postgres NOTIFY events for inventory changes out to
// in-process subscribers. The repository publishes an event inside every
// inventory write; watchers (the SSE endpoint) subscribe per shop and
// re-fetch on any insert, update or delete.
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/jkamau/duka-server/internal/models"
	"github.com/jkamau/duka-server/internal/repository"
	"github.com/jkamau/duka-server/internal/utils"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
)

// Listener listens on the inventory NOTIFY channel and dispatches events to
// per-shop subscribers.
type Listener struct {
	pq     *pq.Listener
	logger *utils.Logger

	mu   sync.Mutex
	subs map[string]map[chan models.InventoryEvent]struct{}
	done chan struct{}
}

// NewListener opens a dedicated listening connection using the same DSN as
// the main pool and starts dispatching.
func NewListener(dsn string) (*Listener, error) {
	logger := utils.NewLogger()
	pql := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				logger.Error("inventory listener event %d: %v", event, err)
				return
			}
			if event == pq.ListenerEventReconnected {
				logger.Info("inventory listener reconnected")
			}
		})

	if err := pql.Listen(repository.InventoryChannel); err != nil {
		pql.Close()
		return nil, err
	}

	l := &Listener{
		pq:     pql,
		logger: logger,
		subs:   make(map[string]map[chan models.InventoryEvent]struct{}),
		done:   make(chan struct{}),
	}
	go l.run()

	return l, nil
}

// Subscribe returns a channel of change events for the given shop. The
// channel is buffered; events are dropped rather than blocking the dispatch
// loop if a subscriber falls behind (watchers re-fetch on every event, so a
// dropped event is coalesced with the next one).
func (l *Listener) Subscribe(shopID string) chan models.InventoryEvent {
	ch := make(chan models.InventoryEvent, 8)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subs[shopID] == nil {
		l.subs[shopID] = make(map[chan models.InventoryEvent]struct{})
	}
	l.subs[shopID][ch] = struct{}{}

	return ch
}

// Unsubscribe removes the channel and closes it.
func (l *Listener) Unsubscribe(shopID string, ch chan models.InventoryEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if set, ok := l.subs[shopID]; ok {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(l.subs, shopID)
		}
	}
}

// Close stops the dispatch loop and the underlying connection.
func (l *Listener) Close() error {
	close(l.done)
	return l.pq.Close()
}

func (l *Listener) run() {
	for {
		select {
		case <-l.done:
			return
		case n := <-l.pq.Notify:
			if n == nil {
				// Connection was re-established; notifications may have
				// been missed while down, subscribers re-fetch anyway.
				continue
			}

			var event models.InventoryEvent
			if err := json.Unmarshal([]byte(n.Extra), &event); err != nil {
				l.logger.Error("inventory listener: bad payload %q: %v", n.Extra, err)
				continue
			}
			l.dispatch(event)
		case <-time.After(90 * time.Second):
			// Keep the connection alive through idle periods
			go l.pq.Ping()
		}
	}
}

func (l *Listener) dispatch(event models.InventoryEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ch := range l.subs[event.ShopID] {
		select {
		case ch <- event:
		default:
		}
	}
}
