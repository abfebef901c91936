package server

import (
	"sync"
	"testing"

	"github.com/npezzotti/go-supportchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterDeregister(t *testing.T) {
	r := NewRegistry()

	admin := newTestClient(t, nil, types.RoleAdmin, 0)
	tab1 := newTestClient(t, nil, types.RoleCustomer, 7)
	tab2 := newTestClient(t, nil, types.RoleCustomer, 7)
	other := newTestClient(t, nil, types.RoleCustomer, 8)

	h1 := r.Register(admin)
	h2 := r.Register(tab1)
	h3 := r.Register(tab2)
	r.Register(other)

	assert.Less(t, h1, h2, "expected handles to increase")
	assert.Less(t, h2, h3, "expected handles to increase")
	assert.Equal(t, h2, tab1.handle, "expected handle to be recorded on the client")
	assert.False(t, tab1.connectedAt.IsZero(), "expected connectedAt to be set")
	assert.Equal(t, 4, r.Len())

	assert.Equal(t, []*Client{admin}, r.AdminConnections())
	assert.Equal(t, []*Client{tab1, tab2}, r.CustomerConnections(7), "expected both tabs in connection order")
	assert.Equal(t, []*Client{other}, r.CustomerConnections(8))
	assert.Empty(t, r.CustomerConnections(9), "expected no connections for unknown customer")

	removed, ok := r.Deregister(h2)
	require.True(t, ok, "expected first deregister to remove the connection")
	assert.Equal(t, tab1, removed)
	assert.Equal(t, []*Client{tab2}, r.CustomerConnections(7))

	_, ok = r.Deregister(h2)
	assert.False(t, ok, "expected second deregister to be a no-op")
	assert.Equal(t, 3, r.Len())

	r.Deregister(h3)
	assert.Empty(t, r.CustomerConnections(7))
	_, exists := r.customers[7]
	assert.False(t, exists, "expected empty customer set to be dropped")

	r.Deregister(h1)
	assert.Empty(t, r.AdminConnections())
}

func TestRegistry_ResultsAreCopies(t *testing.T) {
	r := NewRegistry()
	c := newTestClient(t, nil, types.RoleCustomer, 1)
	r.Register(c)

	conns := r.CustomerConnections(1)
	conns[0] = nil

	assert.Equal(t, []*Client{c}, r.CustomerConnections(1), "expected registry to be unaffected by caller mutation")
}

func TestRegistry_ConcurrentDeregister(t *testing.T) {
	r := NewRegistry()
	c := newTestClient(t, nil, types.RoleCustomer, 3)
	h := r.Register(c)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		removed int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Deregister(h); ok {
				mu.Lock()
				removed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, removed, "expected exactly one deregister to succeed")
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, Snapshot{}, r.Snapshot(), "expected empty snapshot")

	first := newTestClient(t, nil, types.RoleAdmin, 0)
	r.Register(first)
	r.Register(newTestClient(t, nil, types.RoleCustomer, 1))
	r.Register(newTestClient(t, nil, types.RoleCustomer, 1))
	r.Register(newTestClient(t, nil, types.RoleCustomer, 2))

	s := r.Snapshot()
	assert.Equal(t, 4, s.Connections)
	assert.Equal(t, 1, s.Admins)
	assert.Equal(t, 2, s.Customers, "expected customers counted by distinct id")
	assert.Equal(t, first.connectedAt, s.Oldest)
	assert.Len(t, r.All(), 4)
}
