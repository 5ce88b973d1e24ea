// Package sse streams data change events to connected clients over
// Server-Sent Events.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tabletalk/pkg/models"
)

// WriteTimeout bounds one event write so a stale connection cannot
// stall a broadcast.
const WriteTimeout = 2 * time.Second

// envelope is the wire shape of one streamed event.
type envelope struct {
	Type  string             `json:"type"`
	Event *models.ChangeEvent `json:"event,omitempty"`
}

// client is one connected event listener.
type client struct {
	id      string
	writer  http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
}

// Broadcaster fans committed change events out to every listener.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]*client
	nextID  int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[string]*client)}
}

// Broadcast sends one change event to all connected clients. Writes run
// concurrently; clients that fail or time out are dropped.
func (b *Broadcaster) Broadcast(event models.ChangeEvent) {
	payload, err := json.Marshal(envelope{Type: "change", Event: &event})
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal change event")
		return
	}
	message := fmt.Sprintf("data: %s\n\n", payload)

	b.mu.RLock()
	targets := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	deadCh := make(chan string, len(targets))
	var wg sync.WaitGroup
	for _, c := range targets {
		select {
		case <-c.done:
			continue
		default:
		}
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			b.write(c, message, deadCh)
		}(c)
	}
	wg.Wait()
	close(deadCh)

	for id := range deadCh {
		b.drop(id)
	}
}

// write delivers one message to one client under the write timeout.
func (b *Broadcaster) write(c *client, message string, deadCh chan<- string) {
	written := make(chan struct{})
	go func() {
		defer close(written)
		if _, err := c.writer.Write([]byte(message)); err != nil {
			log.Debug().Str("clientId", c.id).Err(err).Msg("SSE write failed, dropping client")
			deadCh <- c.id
			return
		}
		c.flusher.Flush()
	}()

	select {
	case <-written:
	case <-time.After(WriteTimeout):
		log.Warn().Str("clientId", c.id).Msg("SSE write timed out, dropping client")
		deadCh <- c.id
	case <-c.done:
	}
}

// ClientCount returns the number of connected listeners.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP handles one event stream connection, blocking until the
// client disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	c := b.add(w, flusher)
	defer b.remove(c)

	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"clientId\":%q}\n\n", c.id)
	flusher.Flush()

	<-r.Context().Done()
}

func (b *Broadcaster) add(w http.ResponseWriter, flusher http.Flusher) *client {
	b.mu.Lock()
	b.nextID++
	c := &client{
		id:      fmt.Sprintf("client-%d", b.nextID),
		writer:  w,
		flusher: flusher,
		done:    make(chan struct{}),
	}
	b.clients[c.id] = c
	total := len(b.clients)
	b.mu.Unlock()

	log.Debug().Str("clientId", c.id).Int("totalClients", total).Msg("SSE client connected")
	return c
}

func (b *Broadcaster) remove(c *client) {
	b.drop(c.id)
}

func (b *Broadcaster) drop(id string) {
	b.mu.Lock()
	c, exists := b.clients[id]
	if exists {
		delete(b.clients, id)
	}
	total := len(b.clients)
	b.mu.Unlock()

	if exists {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
		log.Debug().Str("clientId", id).Int("totalClients", total).Msg("SSE client disconnected")
	}
}
