// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/wfunc/arena/game"
	"github.com/wfunc/arena/logger"
	"github.com/wfunc/arena/models"
)

// Event is one spectator message: a move as it lands, or the final
// result.
type Event struct {
	Type    string              `json:"type"` // "move" | "result"
	MatchID string              `json:"match_id"`
	Move    *models.Move        `json:"move,omitempty"`
	Board   string              `json:"board,omitempty"`
	Ply     int                 `json:"ply,omitempty"`
	Result  *models.MatchResult `json:"result,omitempty"`
}

// Subscriber is one attached spectator connection.
type Subscriber interface {
	Send(event Event) error
	Close() error
}

// Hub fans match events out to spectators. Subscribers attach to a match
// id; a subscriber that fails to accept a write is dropped.
type Hub struct {
	mutex sync.RWMutex
	subs  map[string]map[Subscriber]struct{} // matchID -> set
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[Subscriber]struct{}),
	}
}

func (h *Hub) Subscribe(matchID string, sub Subscriber) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.subs[matchID] == nil {
		h.subs[matchID] = make(map[Subscriber]struct{})
	}
	h.subs[matchID][sub] = struct{}{}
}

func (h *Hub) Unsubscribe(matchID string, sub Subscriber) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if set, ok := h.subs[matchID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, matchID)
		}
	}
}

func (h *Hub) publish(matchID string, event Event) {
	h.mutex.RLock()
	set := h.subs[matchID]
	subs := make([]Subscriber, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	h.mutex.RUnlock()

	for _, sub := range subs {
		if err := sub.Send(event); err != nil {
			logger.Log.Debugf("Dropping spectator of match %s: %v", matchID, err)
			h.Unsubscribe(matchID, sub)
			sub.Close()
		}
	}
}

// OnMove implements match.Observer.
func (h *Hub) OnMove(matchID string, mv models.Move, state game.State) {
	h.publish(matchID, Event{
		Type:    "move",
		MatchID: matchID,
		Move:    &mv,
		Board:   game.Render(state.Board),
		Ply:     state.Ply,
	})
}

// OnFinish implements match.Observer.
func (h *Hub) OnFinish(matchID string, result *models.MatchResult) {
	h.publish(matchID, Event{
		Type:    "result",
		MatchID: matchID,
		Result:  result,
	})
}

// WSSubscriber adapts a websocket connection to the Subscriber interface.
type WSSubscriber struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
}

func NewWSSubscriber(conn *websocket.Conn) *WSSubscriber {
	return &WSSubscriber{conn: conn}
}

func (s *WSSubscriber) Send(event Event) error {
	s.sendMutex.Lock()
	defer s.sendMutex.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *WSSubscriber) Close() error {
	return s.conn.Close()
}
