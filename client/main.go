// Spectator client: attaches to a match's websocket feed and prints the
// board after every move.
package main

import (
	"encoding/json"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
)

type event struct {
	Type    string          `json:"type"`
	MatchID string          `json:"match_id"`
	Board   string          `json:"board,omitempty"`
	Ply     int             `json:"ply,omitempty"`
	Move    json.RawMessage `json:"move,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: client <match_id> [host]")
	}
	matchID := os.Args[1]
	host := "localhost:8080"
	if len(os.Args) > 2 {
		host = os.Args[2]
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: host, Path: "/ws/matches/" + matchID}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			var ev event
			if err := json.Unmarshal(message, &ev); err != nil {
				log.Printf("Received invalid event: %s", string(message))
				continue
			}
			switch ev.Type {
			case "move":
				log.Printf("ply %d, move %s\n%s", ev.Ply, string(ev.Move), ev.Board)
			case "result":
				log.Printf("match %s finished: %s", ev.MatchID, string(ev.Result))
				return
			default:
				log.Printf("<- %s", string(message))
			}
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		log.Println("Interrupt received, closing connection.")
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("Write close error:", err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}
