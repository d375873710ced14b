package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Event kinds carried on the status stream.
const (
	KindLog  = "log"
	KindPass = "pass"
)

// subscriberBuffer is the per-client backlog before messages are dropped.
const subscriberBuffer = 64

// StatusEvent is one message on the status stream.
type StatusEvent struct {
	Time  string     `json:"t"`
	Kind  string     `json:"k"`
	Level string     `json:"l,omitempty"`
	Msg   string     `json:"msg,omitempty"`
	Pass  *PassEvent `json:"pass,omitempty"`
}

// PassEvent reports a pass state change.
type PassEvent struct {
	Name        string `json:"name"`
	CatalogID   string `json:"catalog_id"`
	Culmination string `json:"culmination"`
	State       string `json:"state"`
	Reason      string `json:"reason,omitempty"`
}

// StatusBroadcaster fans status events out to SSE clients. Slow clients
// lose messages rather than block the publisher.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	now     func() time.Time
}

// NewStatusBroadcaster creates a broadcaster with no clients.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
		now:     time.Now,
	}
}

// Subscribe returns a channel of JSON-encoded events and its cleanup,
// which the caller must run when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, subscriberBuffer)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients is the number of live subscribers.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast publishes a log line.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.publish(StatusEvent{Kind: KindLog, Level: level, Msg: msg})
}

// BroadcastPass publishes a pass state change.
func (b *StatusBroadcaster) BroadcastPass(p PassEvent) {
	b.publish(StatusEvent{Kind: KindPass, Pass: &p})
}

func (b *StatusBroadcaster) publish(evt StatusEvent) {
	evt.Time = b.now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// BroadcastWriter adapts the broadcaster to an io.Writer so the logger can
// tee its output to the stream. Each non-empty line becomes one event.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		w.b.Broadcast(levelOf(line), line)
	}
	return len(p), nil
}

// levelOf reads the level column of a console-encoded log line.
func levelOf(line string) string {
	for _, lvl := range []string{"ERROR", "WARN", "DEBUG"} {
		if strings.Contains(line, " "+lvl+" ") {
			return strings.ToLower(lvl)
		}
	}
	return "info"
}
