package realtime

import (
	"context"
	"fmt"
	"log"
	"strings"

	"messenger/internal/database"
	"messenger/internal/stats"
)

type stopReq struct {
	done chan struct{}
}

// Hub fans state-change events out to subscribed websocket clients. All
// channel state is owned by the Run loop; clients and HTTP handlers talk to
// it over buffered channels. Delivery is best-effort: events to slow
// consumers are dropped, never retried.
type Hub struct {
	log             *log.Logger
	db              database.MessengerRepository
	stats           stats.StatsProvider
	registerChan    chan *Client
	deregisterChan  chan *Client
	subscribeChan   chan *ClientMessage
	unsubscribeChan chan *ClientMessage
	publishChan     chan *Event
	stop            chan stopReq
	clients         map[*Client]struct{}
	channels        map[string]map[*Client]struct{}
}

func NewHub(logger *log.Logger, db database.MessengerRepository, sp stats.StatsProvider) (*Hub, error) {
	h := &Hub{
		log:             logger,
		db:              db,
		stats:           sp,
		registerChan:    make(chan *Client),
		deregisterChan:  make(chan *Client),
		subscribeChan:   make(chan *ClientMessage, 256),
		unsubscribeChan: make(chan *ClientMessage, 256),
		publishChan:     make(chan *Event, 256),
		stop:            make(chan stopReq),
		clients:         make(map[*Client]struct{}),
		channels:        make(map[string]map[*Client]struct{}),
	}

	for _, metric := range []string{"ActiveConnections", "ActiveChannels", "EventsPublished", "EventsDropped"} {
		h.stats.RegisterMetric(metric)
	}

	return h, nil
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.registerChan:
			h.log.Printf("adding connection %s for %q", client.sessionId, client.user.EmailAddress)
			h.addClient(client)
		case client := <-h.deregisterChan:
			h.log.Printf("removing connection %s for %q", client.sessionId, client.user.EmailAddress)
			h.removeClient(client)
		case msg := <-h.subscribeChan:
			h.handleSubscribe(msg)
		case msg := <-h.unsubscribeChan:
			h.handleUnsubscribe(msg)
		case event := <-h.publishChan:
			h.fanout(event)
		case req := <-h.stop:
			h.log.Println("shutting down hub")
			for c := range h.clients {
				close(c.stop)
			}

			close(req.done)
			return
		}
	}
}

func (h *Hub) RegisterClient(c *Client) {
	h.registerChan <- c
}

// Publish queues an event for fan-out to a channel's subscribers. It never
// blocks: when the hub is backed up the event is dropped and only counted.
func (h *Hub) Publish(channel, name string, payload any) {
	event := &Event{
		Channel: channel,
		Name:    name,
		Payload: payload,
	}

	select {
	case h.publishChan <- event:
	default:
		h.log.Printf("publish queue full, dropping event %q on channel %q", name, channel)
		h.stats.Incr("EventsDropped")
	}
}

func (h *Hub) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}

	select {
	case h.stop <- req:
	case <-ctx.Done():
		return fmt.Errorf("hub shutdown: %w", ctx.Err())
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hub shutdown: %w", ctx.Err())
	}
}

func (h *Hub) addClient(c *Client) {
	h.clients[c] = struct{}{}
	h.stats.Incr("ActiveConnections")
}

func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	h.stats.Decr("ActiveConnections")

	for _, name := range c.channelList() {
		h.removeSubscriber(name, c)
	}
}

// authorizeChannel decides whether a client may subscribe to a channel:
// every user may join the shared presence channel and their own email
// channel; conversation channels are member-only.
func (h *Hub) authorizeChannel(c *Client, name string) *ServerMessage {
	switch {
	case name == PresenceChannel:
		return nil
	case name == c.user.EmailAddress:
		return nil
	case strings.HasPrefix(name, conversationChannelPrefix):
		externalId := strings.TrimPrefix(name, conversationChannelPrefix)
		conv, err := h.db.GetConversationByExternalId(externalId)
		if err != nil {
			return ErrChannelNotFound(0)
		}

		if !h.db.IsMember(conv.Id, c.user.Id) {
			return ErrChannelForbidden(0)
		}
		return nil
	default:
		return ErrChannelForbidden(0)
	}
}

func (h *Hub) handleSubscribe(msg *ClientMessage) {
	c := msg.client
	name := msg.Subscribe.Channel

	if errMsg := h.authorizeChannel(c, name); errMsg != nil {
		errMsg.Id = msg.Id
		c.queueMessage(errMsg)
		return
	}

	if h.channels[name] == nil {
		h.channels[name] = make(map[*Client]struct{})
		h.stats.Incr("ActiveChannels")
	}

	firstForUser := name == PresenceChannel && !h.presenceHasUser(c.user.EmailAddress)

	h.channels[name][c] = struct{}{}
	c.addChannel(name)

	var data any
	if name == PresenceChannel {
		data = map[string]any{"members": h.presenceMembers()}
	}
	c.queueMessage(NoErrOK(msg.Id, data))

	if firstForUser {
		h.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Event: &Event{
				Channel: PresenceChannel,
				Name:    EventMemberAdded,
				Payload: map[string]string{"id": c.user.EmailAddress},
			},
			SkipClient: c,
		})
	}
}

func (h *Hub) handleUnsubscribe(msg *ClientMessage) {
	c := msg.client
	name := msg.Unsubscribe.Channel

	h.removeSubscriber(name, c)
	c.queueMessage(NoErrOK(msg.Id, nil))
}

// removeSubscriber drops a client from a channel, unloading the channel when
// it empties and announcing departure from the presence channel once the
// user's last connection is gone.
func (h *Hub) removeSubscriber(name string, c *Client) {
	subscribers, ok := h.channels[name]
	if !ok {
		return
	}

	if _, ok := subscribers[c]; !ok {
		return
	}

	delete(subscribers, c)
	c.delChannel(name)

	if len(subscribers) == 0 {
		delete(h.channels, name)
		h.stats.Decr("ActiveChannels")
	}

	if name == PresenceChannel && !h.presenceHasUser(c.user.EmailAddress) {
		h.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Event: &Event{
				Channel: PresenceChannel,
				Name:    EventMemberRemoved,
				Payload: map[string]string{"id": c.user.EmailAddress},
			},
			SkipClient: c,
		})
	}
}

func (h *Hub) presenceHasUser(email string) bool {
	for c := range h.channels[PresenceChannel] {
		if c.user.EmailAddress == email {
			return true
		}
	}
	return false
}

func (h *Hub) presenceMembers() []string {
	seen := make(map[string]struct{})
	members := make([]string, 0)
	for c := range h.channels[PresenceChannel] {
		if _, ok := seen[c.user.EmailAddress]; ok {
			continue
		}
		seen[c.user.EmailAddress] = struct{}{}
		members = append(members, c.user.EmailAddress)
	}
	return members
}

func (h *Hub) fanout(event *Event) {
	h.stats.Incr("EventsPublished")

	h.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Event:       event,
	})
}

func (h *Hub) broadcast(msg *ServerMessage) {
	for client := range h.channels[msg.Event.Channel] {
		if client == msg.SkipClient {
			continue
		}

		if !client.queueMessage(msg) {
			h.stats.Incr("EventsDropped")
		}
	}
}

func (h *Hub) getChannel(name string) (map[*Client]struct{}, bool) {
	subscribers, ok := h.channels[name]
	return subscribers, ok
}
