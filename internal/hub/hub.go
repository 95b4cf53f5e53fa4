package hub

import (
	"context"

	"github.com/DoyleJ11/auction-backend/internal/metrics"
	"github.com/DoyleJ11/auction-backend/internal/types"
	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

type Register struct {
	ClientID string
	Outbox   chan types.Outbound
}

type Unregister struct {
	ClientID string
}

// Promote marks a subscriber as privileged (admin) or not. Privileged
// subscribers receive the Full variant of a broadcast.
type Promote struct {
	ClientID   string
	Privileged bool
}

// Broadcast goes to every subscriber except Except. Public is what
// non-privileged subscribers get; when its Event is empty they get Full.
type Broadcast struct {
	Full   types.Outbound
	Public types.Outbound
	Except string
}

type SendTo struct {
	ClientID string
	Msg      types.Outbound
}

type Count struct {
	Reply chan int
}

type ShutdownHub struct{}

func (Register) isHubMsg()    {}
func (Unregister) isHubMsg()  {}
func (Promote) isHubMsg()     {}
func (Broadcast) isHubMsg()   {}
func (SendTo) isHubMsg()      {}
func (Count) isHubMsg()       {}
func (ShutdownHub) isHubMsg() {}

type subscriber struct {
	outbox     chan types.Outbound
	privileged bool
}

// Hub owns the set of connected clients and fans messages out to them.
// Messages are delivered in the order they reach the inbox.
type Hub struct {
	inbox   chan HubMsg
	subs    map[string]*subscriber
	log     *zap.Logger
	metrics *metrics.Metrics
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger, m *metrics.Metrics) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 256),
		subs:    make(map[string]*subscriber),
		log:     log.Named("hub"),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Send delivers msg unless the hub has stopped.
func (h *Hub) Send(msg HubMsg) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbox <- msg:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Register:
				if old, ok := h.subs[msg.ClientID]; ok {
					close(old.outbox)
				}
				h.subs[msg.ClientID] = &subscriber{outbox: msg.Outbox}
				h.metrics.SetClients(len(h.subs))

			case Unregister:
				if sub, ok := h.subs[msg.ClientID]; ok {
					close(sub.outbox)
					delete(h.subs, msg.ClientID)
					h.metrics.SetClients(len(h.subs))
				}

			case Promote:
				if sub, ok := h.subs[msg.ClientID]; ok {
					sub.privileged = msg.Privileged
				}

			case Broadcast:
				h.broadcast(msg)

			case SendTo:
				if sub, ok := h.subs[msg.ClientID]; ok {
					h.deliver(msg.ClientID, sub, msg.Msg)
				}

			case Count:
				msg.Reply <- len(h.subs)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) broadcast(b Broadcast) {
	public := b.Public
	if public.Event == "" {
		public = b.Full
	}
	h.metrics.Broadcast(b.Full.Event)
	for id, sub := range h.subs {
		if id == b.Except {
			continue
		}
		if sub.privileged {
			h.deliver(id, sub, b.Full)
		} else {
			h.deliver(id, sub, public)
		}
	}
}

func (h *Hub) deliver(id string, sub *subscriber, msg types.Outbound) {
	select {
	case sub.outbox <- msg:
	default:
		// Client is slow/full - drop them.
		h.log.Warn("dropping slow client", zap.String("client_id", id), zap.String("event", msg.Event))
		close(sub.outbox)
		delete(h.subs, id)
		h.metrics.SlowClientDropped()
		h.metrics.SetClients(len(h.subs))
	}
}

func (h *Hub) shutdown() {
	for id, sub := range h.subs {
		close(sub.outbox) // Tell client no more messages
		delete(h.subs, id)
	}
	h.metrics.SetClients(0)
	h.cancel()
}
