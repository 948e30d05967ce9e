package webtiles

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/crawl-tools/webtiles/pkg/protocol"
)

// WatchSession tracks the game being spectated. It only transitions on
// explicit protocol messages or explicit stop requests, never on silence.
type WatchSession struct {
	watching   bool
	username   string
	gameID     string
	spectators map[string]struct{}
}

func newWatchSession() *WatchSession {
	return &WatchSession{spectators: map[string]struct{}{}}
}

// Watching reports whether the server has acknowledged a watch request.
func (w *WatchSession) Watching() bool {
	return w.watching
}

// Target returns the username and game id of the watch target. The game id
// is the caller's request, not a server fact: WebTiles can't disambiguate
// among several concurrent games of one user, so the id is a best guess
// until confirmed elsewhere.
func (w *WatchSession) Target() (username, gameID string) {
	return w.username, w.gameID
}

// Spectators returns a sorted snapshot of the spectator names, excluding
// the connection's own login.
func (w *WatchSession) Spectators() []string {
	names := make([]string, 0, len(w.spectators))
	for n := range w.spectators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (w *WatchSession) HasSpectator(name string) bool {
	_, ok := w.spectators[name]
	return ok
}

func (w *WatchSession) setTarget(username, gameID string) {
	w.username = username
	w.gameID = gameID
	w.watching = false
}

func (w *WatchSession) setSpectators(names []string, self string) {
	w.spectators = make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" && n != self {
			w.spectators[n] = struct{}{}
		}
	}
}

func (w *WatchSession) reset() {
	w.watching = false
	w.username = ""
	w.gameID = ""
	w.spectators = map[string]struct{}{}
}

// v1 spectator payloads are display HTML: comma-joined names, possibly
// wrapped in anchor or span tags, with an "and N Anon" aggregate tail.
var (
	spectatorTagPattern  = regexp.MustCompile(`</?(?:a|span)[^>]*>`)
	spectatorAnonPattern = regexp.MustCompile(`( and )?\d+ Anon`)
)

func parseV1Spectators(names string) []string {
	names = spectatorTagPattern.ReplaceAllString(names, "")
	if loc := spectatorAnonPattern.FindStringIndex(names); loc != nil {
		names = names[:loc[0]] + names[loc[1]:]
	}
	var out []string
	for _, n := range strings.Split(names, ", ") {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// SendWatchGame asks the server to spectate username's game. The target is
// recorded optimistically, but the session isn't watching until the server
// acknowledges with a watching_started message.
func (c *Conn) SendWatchGame(ctx context.Context, username, gameID string) error {
	if err := c.Send(ctx, protocol.Watch(username)); err != nil {
		return err
	}
	c.watch.setTarget(username, gameID)
	return nil
}

// SendStopWatching returns the connection to the lobby. It is valid even
// when nothing is being watched, and clears local watch state immediately
// without waiting for the server.
func (c *Conn) SendStopWatching(ctx context.Context) error {
	if err := c.Send(ctx, protocol.GoLobby()); err != nil {
		return err
	}
	c.watch.reset()
	return nil
}

// SendChat sends a chat message to the watched game's chat.
func (c *Conn) SendChat(ctx context.Context, text string) error {
	if !c.watch.watching {
		return ErrNotWatching
	}
	if !c.loggedIn {
		return ErrNotLoggedIn
	}
	return c.Send(ctx, protocol.Chat(text))
}

// UpdateRC replaces the user's RC file for the given game on the server.
func (c *Conn) UpdateRC(ctx context.Context, gameID, contents string) error {
	if !c.loggedIn {
		return ErrNotLoggedIn
	}
	return c.Send(ctx, protocol.SetRC(gameID, contents))
}

// RequestRC asks for the user's RC file for the given game. The contents
// arrive later in an rcfile_contents message, which the dispatcher leaves
// to the caller.
func (c *Conn) RequestRC(ctx context.Context, gameID string) error {
	if !c.loggedIn {
		return ErrNotLoggedIn
	}
	return c.Send(ctx, protocol.GetRC(gameID))
}
