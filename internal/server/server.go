package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/stats"
	"github.com/npezzotti/go-supportchat/internal/types"
)

// Relay ties the registry, router and broadcaster together and owns the
// connection lifecycle.
type Relay struct {
	log         *log.Logger
	db          database.MessageStore
	stats       stats.StatsProvider
	adminId     int
	registry    *Registry
	broadcaster *Broadcaster
	router      *Router

	// pumps counts the running read and write pumps started by Start.
	pumps sync.WaitGroup
}

func NewRelay(logger *log.Logger, db database.MessageStore, su stats.StatsProvider, adminId int) *Relay {
	r := &Relay{
		log:      logger,
		db:       db,
		stats:    su,
		adminId:  adminId,
		registry: NewRegistry(),
	}

	r.broadcaster = &Broadcaster{log: logger, stats: su, evict: r.evict}
	r.router = &Router{
		db:          db,
		registry:    r.registry,
		broadcaster: r.broadcaster,
		stats:       su,
		log:         logger,
		adminId:     adminId,
	}

	for _, name := range []string{
		stats.NumActiveConnections,
		stats.NumAdminConnections,
		stats.NumMessagesPersisted,
		stats.NumPersistenceFailures,
		stats.NumDeliveryFailures,
	} {
		su.RegisterMetric(name)
	}

	return r
}

// Connect registers c and stages the history of replayConversation (0 for
// none) followed by a welcome notice. c is registered before history is
// read, so any message appended meanwhile reaches c live and is dropped by
// the write pump if the history already holds it.
func (r *Relay) Connect(ctx context.Context, c *Client, replayConversation int) error {
	r.registry.Register(c)
	r.stats.Incr(stats.NumActiveConnections)
	if c.role == types.RoleAdmin {
		r.stats.Incr(stats.NumAdminConnections)
	}

	if replayConversation > 0 {
		history, err := r.db.GetMessages(ctx, replayConversation)
		if err != nil {
			r.Disconnect(c)
			return &types.PersistenceError{Op: "load history", Err: err}
		}

		c.replayConversation = replayConversation
		for _, msg := range history {
			c.backlog = append(c.backlog, NewMessageEvent(msg, r.adminId))
			c.replayedThrough = msg.Id
		}
	}

	c.backlog = append(c.backlog, SystemNotice(r.welcome(c)))
	r.log.Printf("connection %s: registered %s (replayed %d messages)", c.id, c.role, len(c.backlog)-1)

	return nil
}

// Start runs the write and read pumps of a connected client.
func (r *Relay) Start(c *Client) {
	r.pumps.Add(2)
	go func() {
		defer r.pumps.Done()
		c.Write()
	}()
	go func() {
		defer r.pumps.Done()
		c.Read()
	}()
}

func (r *Relay) welcome(c *Client) string {
	if c.role == types.RoleAdmin {
		return "Welcome to the support chat! You are connected as the administrator."
	}

	return fmt.Sprintf("Welcome to the support chat! Your ID: %d", c.customerId)
}

// Disconnect removes c from the relay. It is safe to call more than once.
func (r *Relay) Disconnect(c *Client) {
	if _, ok := r.registry.Deregister(c.handle); !ok {
		return
	}

	r.stats.Decr(stats.NumActiveConnections)
	if c.role == types.RoleAdmin {
		r.stats.Decr(stats.NumAdminConnections)
	}
	r.log.Printf("connection %s: deregistered", c.id)
}

func (r *Relay) evict(c *Client) {
	c.stopClient()
	r.Disconnect(c)
}

func (r *Relay) ActiveConnections() int {
	return r.registry.Len()
}

func (r *Relay) CountMessages(ctx context.Context) (int, error) {
	return r.db.CountMessages(ctx)
}

// Diagnostics logs a snapshot of the live connections.
func (r *Relay) Diagnostics() {
	s := r.registry.Snapshot()
	if s.Connections == 0 {
		r.log.Println("diagnostics: no live connections")
		return
	}

	r.log.Printf("diagnostics: %d connections (%d admin, %d customers), oldest since %s",
		s.Connections, s.Admins, s.Customers, s.Oldest.Format(time.RFC3339))
}

// Shutdown stops every client and waits for their pumps to finish, or for
// ctx to end. Once it returns nil no connection touches the relay again.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.log.Println("received shutdown signal")
	for _, c := range r.registry.All() {
		c.stopClient()
	}

	done := make(chan struct{})
	go func() {
		r.pumps.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
