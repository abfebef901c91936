package server

import (
	"slices"
	"sync"
	"time"

	"github.com/npezzotti/go-supportchat/internal/types"
)

// Handle identifies one registration. Handles are issued in increasing order.
type Handle uint64

// Registry is the live set of connections. Every method holds the same
// mutex, so readers never observe a half-removed connection.
type Registry struct {
	mu        sync.Mutex
	seq       Handle
	clients   map[Handle]*Client
	admins    map[Handle]*Client
	customers map[int]map[Handle]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		clients:   make(map[Handle]*Client),
		admins:    make(map[Handle]*Client),
		customers: make(map[int]map[Handle]*Client),
	}
}

func (r *Registry) Register(c *Client) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	h := r.seq
	c.handle = h
	c.connectedAt = time.Now()

	r.clients[h] = c
	if c.role == types.RoleAdmin {
		r.admins[h] = c
		return h
	}

	if r.customers[c.customerId] == nil {
		r.customers[c.customerId] = make(map[Handle]*Client)
	}
	r.customers[c.customerId][h] = c

	return h
}

// Deregister removes the connection behind h. It reports whether this call
// removed it; repeated calls are no-ops.
func (r *Registry) Deregister(h Handle) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[h]
	if !ok {
		return nil, false
	}

	delete(r.clients, h)
	delete(r.admins, h)
	if conns, ok := r.customers[c.customerId]; ok && c.role == types.RoleCustomer {
		delete(conns, h)
		if len(conns) == 0 {
			delete(r.customers, c.customerId)
		}
	}

	return c, true
}

func (r *Registry) AdminConnections() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedClients(r.admins)
}

func (r *Registry) CustomerConnections(customerId int) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedClients(r.customers[customerId])
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.clients)
}

// All returns every live connection.
func (r *Registry) All() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedClients(r.clients)
}

type Snapshot struct {
	Connections int
	Admins      int
	Customers   int
	// Oldest is when the longest-lived connection registered, zero if none.
	Oldest time.Time
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Connections: len(r.clients),
		Admins:      len(r.admins),
		Customers:   len(r.customers),
	}
	for _, c := range r.clients {
		if s.Oldest.IsZero() || c.connectedAt.Before(s.Oldest) {
			s.Oldest = c.connectedAt
		}
	}

	return s
}

func sortedClients(m map[Handle]*Client) []*Client {
	handles := make([]Handle, 0, len(m))
	for h := range m {
		handles = append(handles, h)
	}
	slices.Sort(handles)

	clients := make([]*Client, len(handles))
	for i, h := range handles {
		clients[i] = m[h]
	}

	return clients
}
