// Package protocol defines the WebTiles wire format: the msg/msgs JSON
// envelope servers use to deliver messages, and the outbound request
// shapes clients send back.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message types received from servers. Payload shapes for the lobby,
// catalog and spectator types differ between protocol v1 and v2.
const (
	MsgPing             = "ping"
	MsgLoginSuccess     = "login_success"
	MsgLoginFail        = "login_fail"
	MsgLobbyEntry       = "lobby_entry"    // v1
	MsgLobbyRemove      = "lobby_remove"   // v1
	MsgLobbyClear       = "lobby_clear"    // v1 and v2
	MsgLobbyComplete    = "lobby_complete" // v1
	MsgSetGameLinks     = "set_game_links" // v1
	MsgLobby            = "lobby"          // v2
	MsgGameInfo         = "game_info"      // v2
	MsgWatchingStarted  = "watching_started"
	MsgUpdateSpectators = "update_spectators"
	MsgGameEnded        = "game_ended"
	MsgGoLobby          = "go_lobby" // v1 navigation back to the lobby
	MsgGo               = "go"       // v2 navigation
	MsgChat             = "chat"
	MsgRCFileContents   = "rcfile_contents"
)

// Error is a protocol error: a malformed outbound request or an inbound
// payload that doesn't follow the msg/msgs envelope.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "webtiles protocol: " + e.Reason
}

func Errorf(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// Message is one inbound server message. Data holds the full original
// object so type-specific fields can be decoded later.
type Message struct {
	Type string
	Data json.RawMessage
}

// Decode unmarshals the message payload into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

// Parse splits one decoded frame into its messages. A frame is either a
// batch ({"msgs": [...]}) or a single message carrying its own "msg" type;
// batches keep server order. Any other shape is a protocol error. The
// input must already be syntactically valid JSON.
func Parse(data []byte) ([]Message, error) {
	var env struct {
		Msg  string            `json:"msg"`
		Msgs []json.RawMessage `json:"msgs"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, Errorf("undecodable frame: %v", err)
	}

	if env.Msgs != nil {
		msgs := make([]Message, 0, len(env.Msgs))
		for i, raw := range env.Msgs {
			var inner struct {
				Msg string `json:"msg"`
			}
			if err := json.Unmarshal(raw, &inner); err != nil || inner.Msg == "" {
				return nil, Errorf("batch message %d defines no 'msg' type", i)
			}
			msgs = append(msgs, Message{Type: inner.Msg, Data: raw})
		}
		return msgs, nil
	}

	if env.Msg != "" {
		return []Message{{Type: env.Msg, Data: data}}, nil
	}

	return nil, Errorf("frame defines neither 'msg' nor 'msgs'")
}
