// Package webtiles implements a client for the WebTiles protocol spoken by
// DCSS game-streaming servers: connecting, logging in, tracking the game
// catalog and lobby, watching games, and chat.
package webtiles

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/crawl-tools/webtiles/pkg/protocol"
)

// Version selects the message-schema variant a server speaks. V2 is used
// by servers running the restructured webtiles-changes protocol.
type Version int

const (
	V1 Version = 1
	V2 Version = 2
)

// Credentials are optional login credentials passed to Connect.
type Credentials struct {
	Username string
	Password string
}

// Config configures a Conn. The zero value is usable.
type Config struct {
	// Logger receives debug-level notes about dropped frames and
	// lifecycle events. Defaults to a nop logger.
	Logger *zap.Logger

	// DialOptions are passed through to the websocket dialer.
	DialOptions *websocket.DialOptions
}

// transport is the slice of a websocket the connection needs. Tests swap
// in a recording fake.
type transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}

// Game frames can be large; the websocket default read limit of 32 KiB is
// too small for map dumps.
const frameReadLimit = 1 << 22

// Conn is one logical connection to a WebTiles server. It owns the
// transport, the streaming decompression context, and the derived state
// the dispatcher maintains: login status, game catalog, lobby registry and
// watch session.
//
// A Conn is a single-threaded cooperative machine: Read is the only
// blocking point, and each message handed to Handle runs to completion
// before the next Read. It must not be shared across goroutines, but
// independent Conns to different servers run concurrently just fine.
type Conn struct {
	log  *zap.Logger
	dial *websocket.DialOptions

	ws          transport
	decomp      *decompressor
	version     Version
	loggedIn    bool
	username    string
	connectedAt time.Time

	games      GameCatalog
	lobby      *LobbyRegistry
	completion LobbyCompletion
	watch      *WatchSession
}

func New(cfg Config) *Conn {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{
		log:   log,
		dial:  cfg.DialOptions,
		games: GameCatalog{},
		lobby: newLobbyRegistry(),
		watch: newWatchSession(),
	}
}

// Connect opens the websocket, resets the decompression context and stores
// the protocol version. With credentials it also sends the login request;
// authentication is still only confirmed by a later login_success message.
func (c *Conn) Connect(ctx context.Context, url string, creds *Credentials, version Version) error {
	if c.Connected() {
		return ErrAlreadyConnected
	}
	if version != V1 && version != V2 {
		return protocol.Errorf("unsupported protocol version %d", version)
	}
	if creds != nil && creds.Username != "" && creds.Password == "" {
		return protocol.Errorf("username given but no password given")
	}

	conn, _, err := websocket.Dial(ctx, url, c.dial)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(frameReadLimit)

	c.ws = &wsTransport{conn: conn}
	c.decomp = newDecompressor()
	c.version = version
	c.completion = CompletionUnknown
	if version >= V2 {
		// v2 streams lobby batches as needed; there is no completion signal.
		c.completion = CompletionNotApplicable
	}
	c.connectedAt = time.Now()
	c.log.Debug("connected", zap.String("url", url), zap.Int("protocol", int(version)))

	if creds != nil && creds.Username != "" {
		return c.SendLogin(ctx, creds.Username, creds.Password)
	}
	return nil
}

// SendLogin sends the login request. Sending does not authenticate: the
// connection stays logged out until the dispatcher sees login_success. A
// rejected login surfaces as a login_fail message, which the dispatcher
// deliberately leaves unhandled for the caller.
func (c *Conn) SendLogin(ctx context.Context, username, password string) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	if err := c.Send(ctx, protocol.Login(username, password, c.version >= V2)); err != nil {
		return err
	}
	c.loggedIn = false
	c.username = username
	return nil
}

// Connected reports whether the transport is open.
func (c *Conn) Connected() bool {
	return c.ws != nil
}

// Disconnect closes the transport if open and resets every piece of
// derived state to its initial value. Safe to call repeatedly, and
// required after fatal read/send errors to release the transport.
func (c *Conn) Disconnect() error {
	var err error
	if c.ws != nil {
		err = c.ws.Close()
	}
	c.ws = nil
	c.decomp = nil
	c.version = 0
	c.loggedIn = false
	c.username = ""
	c.connectedAt = time.Time{}
	c.games = GameCatalog{}
	c.lobby.Clear()
	c.completion = CompletionUnknown
	c.watch.reset()
	return err
}

// Send serializes v and writes it as one frame. The message must name its
// type in a "msg" field.
func (c *Conn) Send(ctx context.Context, v any) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	var probe struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(data, &probe) != nil || probe.Msg == "" {
		return protocol.Errorf("outbound message must define a 'msg' type")
	}
	return c.ws.Write(ctx, data)
}

// Read blocks until one frame arrives and returns its messages in server
// order. A nil slice with a nil error means the frame didn't decode to
// JSON; games before 0.12 are known to emit such frames and they are
// dropped without ceremony.
func (c *Conn) Read(ctx context.Context) ([]protocol.Message, error) {
	if !c.Connected() {
		return nil, ErrNotConnected
	}
	frame, err := c.ws.Read(ctx)
	if err != nil {
		return nil, err
	}
	text, err := c.decomp.decode(frame)
	if err != nil {
		return nil, err
	}
	if !json.Valid(text) {
		c.log.Debug("ignoring unparseable frame", zap.ByteString("payload", text))
		return nil, nil
	}
	return protocol.Parse(text)
}

// LoggedIn reports whether the server has confirmed authentication.
func (c *Conn) LoggedIn() bool {
	return c.loggedIn
}

// Username returns the login name sent with the last login request.
func (c *Conn) Username() string {
	return c.username
}

// ProtocolVersion returns the version given to Connect, or 0 when
// disconnected.
func (c *Conn) ProtocolVersion() Version {
	return c.version
}

// ConnectedAt returns when the transport was opened.
func (c *Conn) ConnectedAt() time.Time {
	return c.connectedAt
}

// Games returns a snapshot of the game catalog. The catalog only arrives
// after login.
func (c *Conn) Games() GameCatalog {
	return maps.Clone(c.games)
}

// Lobby returns the connection's lobby registry.
func (c *Conn) Lobby() *LobbyRegistry {
	return c.lobby
}

// LobbyCompletion reports the v1 "all entries sent" tri-state; under v2 it
// is always CompletionNotApplicable.
func (c *Conn) LobbyCompletion() LobbyCompletion {
	return c.completion
}

// Watch returns the connection's watch session.
func (c *Conn) Watch() *WatchSession {
	return c.watch
}
