// Package bus implements the cross-context message protocol. Contexts share
// no memory; they exchange messages carrying a closed set of actions, either
// as request/response pairs or as one-way directives with no acknowledgment.
package bus

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/feedlens/relay/internal/feed"
)

// Action discriminates bus messages. The set is closed: anything outside it
// is answered with an explicit unknown-action response, never dropped.
type Action string

const (
	// Request/response actions (popup <-> background).
	ActionCheckAuth Action = "checkAuth"
	ActionLogout    Action = "logout"
	ActionGetConfig Action = "getConfig"

	// One-way directives (popup -> page injector).
	ActionLoadFeed    Action = "loadFeed"
	ActionRestoreFeed Action = "restoreFeed"
)

// ParseAction maps a wire string onto the closed action set.
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionCheckAuth, ActionLogout, ActionGetConfig, ActionLoadFeed, ActionRestoreFeed:
		return Action(s), true
	default:
		return "", false
	}
}

// IsDirective reports whether the action is a one-way directive.
func (a Action) IsDirective() bool {
	return a == ActionLoadFeed || a == ActionRestoreFeed
}

// Message is one frame on the bus.
type Message struct {
	ID      string          `json:"id"`
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a message with a fresh correlation id.
func NewMessage(action Action, payload any) (Message, error) {
	msg := Message{ID: uuid.NewString(), Action: action}
	if payload != nil {
		data, err := sonic.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("failed to encode payload: %w", err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("message %s has no payload", m.Action)
	}
	return sonic.Unmarshal(m.Payload, v)
}

// Response completes a request/response exchange.
type Response struct {
	ID    string          `json:"id"`
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the response data into v.
func (r Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response has no data")
	}
	return sonic.Unmarshal(r.Data, v)
}

// UnknownActionError is the error text carried by responses to messages
// whose action falls outside the closed set.
const UnknownActionError = "unknown action"

// AuthStatus answers checkAuth.
type AuthStatus struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	Token           string `json:"token,omitempty"`
}

// LogoutResult answers logout.
type LogoutResult struct {
	Success bool `json:"success"`
}

// ConfigPayload answers getConfig.
type ConfigPayload struct {
	APIURL string `json:"api_url"`
}

// LoadFeedPayload carries a feed snapshot to the page injector.
type LoadFeedPayload struct {
	Tweets []feed.Tweet `json:"tweets"`
	Source string       `json:"source"`
}

// Snapshot converts the payload into an injector snapshot.
func (p LoadFeedPayload) Snapshot() *feed.Snapshot {
	return &feed.Snapshot{SourceUser: p.Source, Tweets: p.Tweets}
}

// RestoreFeedPayload tells the page injector to undo the injection.
type RestoreFeedPayload struct {
	Disable bool `json:"disable"`
}
