package rpc

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/klingon-exchange/depositaddr/pkg/logging"
)

const (
	eventBuffer      = 256
	subscriberBuffer = 64
	maxFrameSize     = 4096
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait / 2
	writeWait        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// EventType names an event pushed over /ws.
type EventType string

const (
	EventVerificationCompleted EventType = "verification_completed"
	EventVerificationFailed    EventType = "verification_failed"
	EventAddressDerived        EventType = "address_derived"

	// EventSubscribed acknowledges a subscribe or unsubscribe request. Its
	// data is the resulting topic list.
	EventSubscribed EventType = "subscribed"
)

// Event is one message on the stream.
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// SubscribeRequest changes the topics of a connection. A connection with no
// topics receives every event.
type SubscribeRequest struct {
	Action string      `json:"action"` // subscribe | unsubscribe
	Events []EventType `json:"events"`
}

type subscriber struct {
	conn *websocket.Conn
	out  chan []byte

	mu     sync.Mutex
	topics map[EventType]struct{}
}

func (s *subscriber) wants(t EventType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[t]
	return ok
}

// apply updates the topic set and returns it sorted.
func (s *subscriber) apply(req *SubscribeRequest) []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range req.Events {
		switch req.Action {
		case "subscribe":
			s.topics[t] = struct{}{}
		case "unsubscribe":
			delete(s.topics, t)
		}
	}
	topics := make([]EventType, 0, len(s.topics))
	for t := range s.topics {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })
	return topics
}

// EventHub fans events out to WebSocket subscribers.
type EventHub struct {
	events chan *Event
	done   chan struct{}
	once   sync.Once
	log    *logging.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewEventHub creates a hub. Call Run to start delivery.
func NewEventHub() *EventHub {
	return &EventHub{
		events: make(chan *Event, eventBuffer),
		done:   make(chan struct{}),
		log:    logging.GetDefault().Component("ws"),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Run delivers published events until Stop.
func (h *EventHub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for s := range h.subs {
				h.dropLocked(s)
			}
			h.mu.Unlock()
			return
		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

func (h *EventHub) deliver(ev *Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("Failed to encode event", "type", ev.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if !s.wants(ev.Type) {
			continue
		}
		select {
		case s.out <- data:
		default:
			h.log.Debug("Dropping slow subscriber", "type", ev.Type)
			h.dropLocked(s)
		}
	}
}

// Stop ends Run and disconnects all subscribers. It is safe to call twice.
func (h *EventHub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Publish queues an event. Events are dropped when the queue is full.
func (h *EventHub) Publish(t EventType, data interface{}) {
	select {
	case h.events <- &Event{Type: t, Data: data, Timestamp: time.Now().Unix()}:
	default:
		h.log.Warn("Event queue full, dropping event", "type", t)
	}
}

// Subscribers returns the number of open connections.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *EventHub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return false
	default:
	}
	h.subs[s] = struct{}{}
	h.log.Debug("Subscriber connected", "subscribers", len(h.subs))
	return true
}

func (h *EventHub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(s)
	h.log.Debug("Subscriber disconnected", "subscribers", len(h.subs))
}

func (h *EventHub) dropLocked(s *subscriber) {
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.out)
	}
}

// handleWS upgrades the connection and attaches it to the hub.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		conn:   conn,
		out:    make(chan []byte, subscriberBuffer),
		topics: make(map[EventType]struct{}),
	}
	if !s.events.add(sub) {
		conn.Close()
		return
	}

	go s.events.writeLoop(sub)
	go s.events.readLoop(sub)
}

// readLoop applies subscription requests until the peer goes away.
func (h *EventHub) readLoop(s *subscriber) {
	defer func() {
		h.remove(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("WebSocket read error", "error", err)
			}
			return
		}

		var req SubscribeRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			continue
		}
		ack, err := json.Marshal(&Event{Type: EventSubscribed, Data: s.apply(&req), Timestamp: time.Now().Unix()})
		if err != nil {
			continue
		}

		h.mu.Lock()
		if _, ok := h.subs[s]; ok {
			select {
			case s.out <- ack:
			default:
			}
		}
		h.mu.Unlock()
	}
}

// writeLoop sends queued frames and keeps the connection alive.
func (h *EventHub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
