package server

import (
	"errors"
	"log"

	"github.com/npezzotti/go-supportchat/internal/stats"
	"github.com/npezzotti/go-supportchat/internal/types"
)

var errSendBufferFull = errors.New("send buffer full")

type Broadcaster struct {
	log   *log.Logger
	stats stats.StatsProvider
	// evict stops a recipient that could not keep up and removes it from
	// the registry. Deliver is never called with the registry locked.
	evict func(*Client)
}

// Deliver hands msg to each recipient without blocking. A recipient whose
// buffer is full is evicted; the others still receive msg. It returns the
// number of recipients that accepted the message.
func (b *Broadcaster) Deliver(recipients []*Client, msg *ServerMessage) int {
	delivered := 0
	for _, c := range recipients {
		if c.queueMessage(msg) {
			delivered++
			continue
		}

		err := &types.DeliveryError{ConnId: c.id, Err: errSendBufferFull}
		b.log.Println(err)
		b.stats.Incr(stats.NumDeliveryFailures)
		b.evict(c)
	}

	return delivered
}
