package webtiles

import (
	"html"
	"regexp"

	"github.com/crawl-tools/webtiles/pkg/protocol"
)

// ChatMessage is one line of game chat.
type ChatMessage struct {
	Sender string
	Text   string
}

// v1 chat arrives pre-rendered: "<span ...>sender</span>: <span ...>text</span>".
var v1ChatPattern = regexp.MustCompile(`^<span[^>]+>([^<]+)</span>: <span[^>]+>([^<]+)</span>`)

// ParseChat extracts sender and text from a chat message, decoding HTML
// entities in the text. Chat messages are not handled by Handle; callers
// that care pick them out of the unhandled set and parse them here.
func (c *Conn) ParseChat(m protocol.Message) (ChatMessage, error) {
	if c.version >= V2 {
		var body struct {
			Sender string `json:"sender"`
			Text   string `json:"text"`
		}
		if err := m.Decode(&body); err != nil {
			return ChatMessage{}, protocol.Errorf("bad chat message: %v", err)
		}
		return ChatMessage{Sender: body.Sender, Text: html.UnescapeString(body.Text)}, nil
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := m.Decode(&body); err != nil {
		return ChatMessage{}, protocol.Errorf("bad chat message: %v", err)
	}
	match := v1ChatPattern.FindStringSubmatch(body.Content)
	if match == nil {
		return ChatMessage{}, protocol.Errorf("unable to parse chat message: %s", body.Content)
	}
	return ChatMessage{Sender: match[1], Text: html.UnescapeString(match[2])}, nil
}
