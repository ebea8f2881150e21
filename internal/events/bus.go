// Package events broadcasts "<store>-updated" notifications to whoever is
// watching a collection. Events carry no payload; receivers re-read.
package events

import (
	"sync"
	"time"
)

const (
	SettingsUpdated = "settings-updated"
	SessionsUpdated = "chat-sessions-updated"
	PagesUpdated    = "pages-updated"
	MediaUpdated    = "media-updated"
	LeadsUpdated    = "leads-updated"
)

type Event struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
	// Remote is set for events that arrived through a relay.
	Remote bool `json:"-"`
}

// Publisher is what stores depend on.
type Publisher interface {
	Publish(name string)
}

type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	hooks  []func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: map[int]chan Event{}}
}

var _ Publisher = (*Bus)(nil)

func (b *Bus) Publish(name string) {
	b.dispatch(Event{Name: name, At: time.Now().UTC()})
}

// PublishRemote delivers an event received from another process. Hooks are
// not called, so a relay never echoes its own input.
func (b *Bus) PublishRemote(name string) {
	b.dispatch(Event{Name: name, At: time.Now().UTC(), Remote: true})
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber; it will catch up on the next event
		}
	}
	if ev.Remote {
		return
	}
	for _, h := range b.hooks {
		h(ev)
	}
}

// Subscribe returns a buffered channel of events and a cancel func that
// closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// OnLocal registers fn for every locally published event. fn must not block.
func (b *Bus) OnLocal(fn func(Event)) {
	b.mu.Lock()
	b.hooks = append(b.hooks, fn)
	b.mu.Unlock()
}
