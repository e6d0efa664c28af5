package server

import "sync"

// Registry keeps the single live connection per station identity.
type Registry struct {
	mu          sync.Mutex
	connections map[string]*WebSocket
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*WebSocket),
	}
}

// Register stores the connection under its station identity and returns the
// superseded connection if one was present. Lookup and replacement happen
// under one lock so two concurrent handshakes cannot both win.
func (r *Registry) Register(ws *WebSocket) *WebSocket {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.connections[ws.id]
	r.connections[ws.id] = ws
	if old == ws {
		return nil
	}
	return old
}

// Remove drops the connection only if it is still the registered one,
// a superseded connection cannot evict its replacement. Reports whether
// the connection was the registered one.
func (r *Registry) Remove(ws *WebSocket) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connections[ws.id] == ws {
		delete(r.connections, ws.id)
		return true
	}
	return false
}

func (r *Registry) Get(id string) *WebSocket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connections[id]
}

func (r *Registry) All() []*WebSocket {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*WebSocket, 0, len(r.connections))
	for _, ws := range r.connections {
		all = append(all, ws)
	}
	return all
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connections)
}
