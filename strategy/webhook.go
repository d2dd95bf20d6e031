// strategy/webhook.go
package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wfunc/arena/game"
)

// Webhook proxies the decision to an externally hosted agent. The arena
// POSTs the state snapshot and expects {"column": n} back. The caller's
// context bounds the whole exchange; a timeout or a malformed reply is
// surfaced as an error and becomes a forfeit upstream.
type Webhook struct {
	AgentName string
	URL       string
	client    *http.Client
}

func NewWebhook(agentName, url string) *Webhook {
	return &Webhook{
		AgentName: agentName,
		URL:       url,
		client: &http.Client{
			// Hard upper bound in case the caller forgets a deadline.
			Timeout: 60 * time.Second,
		},
	}
}

func (s *Webhook) Name() string { return "webhook:" + s.AgentName }

type webhookRequest struct {
	Game  string     `json:"game"`
	State game.State `json:"state"`
	You   game.Cell  `json:"you"`
}

type webhookResponse struct {
	Column *int `json:"column"`
}

func (s *Webhook) Decide(ctx context.Context, state game.State) (int, error) {
	payload, err := json.Marshal(webhookRequest{
		Game:  "connect4",
		State: state,
		You:   state.Current,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	var body webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("webhook returned invalid JSON: %w", err)
	}
	if body.Column == nil {
		return 0, fmt.Errorf("webhook reply missing column")
	}
	return *body.Column, nil
}
