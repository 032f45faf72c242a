package viewer

import (
	"sort"
	"sync"
)

// Dispatcher is a listener registry that viewer implementations embed to
// satisfy EventSource.
type Dispatcher struct {
	mu        sync.Mutex
	next      int
	listeners map[EventType]map[int]Listener
}

// AddEventListener registers l for events of type t.
func (d *Dispatcher) AddEventListener(t EventType, l Listener) func() {
	if l == nil {
		return func() {}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listeners == nil {
		d.listeners = make(map[EventType]map[int]Listener)
	}
	if d.listeners[t] == nil {
		d.listeners[t] = make(map[int]Listener)
	}
	d.next++
	key := d.next
	d.listeners[t][key] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners[t], key)
			d.mu.Unlock()
		})
	}
}

// Emit delivers ev to the listeners registered for its type, in
// registration order. Listeners may add or remove listeners while running.
func (d *Dispatcher) Emit(ev Event) {
	d.mu.Lock()
	byKey := d.listeners[ev.Type]
	keys := make([]int, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	d.mu.Unlock()

	sort.Ints(keys)
	for _, k := range keys {
		d.mu.Lock()
		l, ok := d.listeners[ev.Type][k]
		d.mu.Unlock()
		if ok {
			l(ev)
		}
	}
}

// ListenerCount reports how many listeners are registered for t.
func (d *Dispatcher) ListenerCount(t EventType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners[t])
}

// BasicModel is a Model whose state is set by the viewer implementation.
type BasicModel struct {
	mu           sync.RWMutex
	id           ModelID
	sceneBuilder bool
	instanceTree bool
	doc          *Document
	node         *Node
	opts         LoadOptions
}

// NewBasicModel returns a model with the given id.
func NewBasicModel(id ModelID, sceneBuilder bool) *BasicModel {
	return &BasicModel{id: id, sceneBuilder: sceneBuilder}
}

func (m *BasicModel) ID() ModelID          { return m.id }
func (m *BasicModel) IsSceneBuilder() bool { return m.sceneBuilder }

func (m *BasicModel) HasInstanceTree() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.instanceTree
}

// SetInstanceTree records whether the instance tree is populated.
func (m *BasicModel) SetInstanceTree(v bool) {
	m.mu.Lock()
	m.instanceTree = v
	m.mu.Unlock()
}

// Attach records the document node and options the model was loaded from.
func (m *BasicModel) Attach(doc *Document, node *Node, opts LoadOptions) {
	m.mu.Lock()
	m.doc, m.node, m.opts = doc, node, opts
	m.mu.Unlock()
}

// Source returns the document, node and options recorded by Attach.
func (m *BasicModel) Source() (*Document, *Node, LoadOptions) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc, m.node, m.opts
}
