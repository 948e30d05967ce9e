package webtiles

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crawl-tools/webtiles/internal/wtserver"
	"github.com/crawl-tools/webtiles/pkg/protocol"
)

func TestSendChat_StateErrors(t *testing.T) {
	c, _ := newTestConn(V1)
	ctx := context.Background()

	if err := c.SendChat(ctx, "hi"); !errors.Is(err, ErrNotWatching) {
		t.Fatalf("chat while not watching: want ErrNotWatching, got %v", err)
	}

	c.watch.watching = true
	if err := c.SendChat(ctx, "hi"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("chat while not logged in: want ErrNotLoggedIn, got %v", err)
	}

	c.loggedIn = true
	if err := c.SendChat(ctx, "hi"); err != nil {
		t.Fatalf("chat while watching and logged in: %v", err)
	}
}

func TestRCOperations_RequireLogin(t *testing.T) {
	c, ft := newTestConn(V1)
	ctx := context.Background()

	if err := c.UpdateRC(ctx, "0", "show_more = false"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("want ErrNotLoggedIn, got %v", err)
	}
	if err := c.RequestRC(ctx, "0"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("want ErrNotLoggedIn, got %v", err)
	}
	if len(ft.sent) != 0 {
		t.Fatal("failed operations must not write to the transport")
	}

	c.loggedIn = true
	if err := c.UpdateRC(ctx, "0", "show_more = false"); err != nil {
		t.Fatalf("UpdateRC: %v", err)
	}
	if err := c.RequestRC(ctx, "0"); err != nil {
		t.Fatalf("RequestRC: %v", err)
	}
}

func TestSend_RequiresMsgField(t *testing.T) {
	c, ft := newTestConn(V1)

	err := c.Send(context.Background(), map[string]any{"text": "hi"})
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		t.Fatalf("want protocol error for untyped message, got %v", err)
	}
	if len(ft.sent) != 0 {
		t.Fatal("invalid message must not be written")
	}
}

func TestOperations_RequireConnection(t *testing.T) {
	c := New(Config{})
	ctx := context.Background()

	if _, err := c.Read(ctx); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Read: want ErrNotConnected, got %v", err)
	}
	if err := c.Send(ctx, protocol.Pong()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send: want ErrNotConnected, got %v", err)
	}
	if err := c.SendLogin(ctx, "greedo", "pw"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendLogin: want ErrNotConnected, got %v", err)
	}
}

func TestSendLogin_PendingUntilServerConfirms(t *testing.T) {
	c, ft := newTestConn(V2)
	c.loggedIn = true // pretend an earlier login succeeded

	if err := c.SendLogin(context.Background(), "greedo", "pw"); err != nil {
		t.Fatalf("SendLogin: %v", err)
	}
	if c.LoggedIn() {
		t.Fatal("sending login must not authenticate by itself")
	}
	if c.Username() != "greedo" {
		t.Fatalf("want username greedo, got %q", c.Username())
	}

	var req struct {
		Msg        string `json:"msg"`
		RememberMe *bool  `json:"rememberme"`
	}
	if err := json.Unmarshal(ft.sent[0], &req); err != nil || req.Msg != "login" {
		t.Fatalf("bad login request: %s", ft.sent[0])
	}
	if req.RememberMe == nil || *req.RememberMe {
		t.Fatal("v2 login must carry rememberme=false")
	}
}

func TestSendWatchGame_OptimisticTarget(t *testing.T) {
	c, _ := newTestConn(V1)

	if err := c.SendWatchGame(context.Background(), "xom", "trunk"); err != nil {
		t.Fatalf("SendWatchGame: %v", err)
	}
	if c.Watch().Watching() {
		t.Fatal("watching must wait for server acknowledgement")
	}
	user, game := c.Watch().Target()
	if user != "xom" || game != "trunk" {
		t.Fatalf("want target xom/trunk, got %q/%q", user, game)
	}
}

func TestSendStopWatching_ClearsImmediately(t *testing.T) {
	c, ft := newTestConn(V1)
	c.watch.watching = true
	c.watch.username = "xom"
	c.watch.gameID = "trunk"

	// Valid even when nothing is watched; always clears local state.
	if err := c.SendStopWatching(context.Background()); err != nil {
		t.Fatalf("SendStopWatching: %v", err)
	}
	if c.Watch().Watching() {
		t.Fatal("watch state must clear without server acknowledgement")
	}
	var req struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(ft.sent[0], &req); err != nil || req.Msg != "go_lobby" {
		t.Fatalf("want go_lobby request, got %s", ft.sent[0])
	}
}

func TestDisconnect_ResetsEverything(t *testing.T) {
	c, ft := newTestConn(V2)
	c.loggedIn = true
	c.username = "greedo"
	c.games = GameCatalog{"DCSS trunk": "1"}
	c.lobby.Upsert(LobbyEntry{Username: "xom", GameID: "trunk", ID: 7})
	c.watch.watching = true
	c.completion = CompletionNotApplicable

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if !ft.closed {
		t.Fatal("transport not closed")
	}
	if c.Connected() || c.LoggedIn() || c.Username() != "" {
		t.Fatal("connection state not reset")
	}
	if len(c.Games()) != 0 || c.Lobby().Len() != 0 || c.Watch().Watching() {
		t.Fatal("derived state not reset")
	}
	if c.ProtocolVersion() != 0 || c.LobbyCompletion() != CompletionUnknown {
		t.Fatal("version or completion not reset")
	}

	// Idempotent.
	if err := c.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
}

func TestConnect_CredentialValidation(t *testing.T) {
	c := New(Config{})
	err := c.Connect(context.Background(), "ws://unused", &Credentials{Username: "greedo"}, V1)
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		t.Fatalf("want protocol error for missing password, got %v", err)
	}
	if c.Connected() {
		t.Fatal("failed connect must not leave a transport behind")
	}
}

// Integration tests against an in-process server speaking real compressed
// frames.

const catalogHTML = `<a href="#play-0">DCSS 0.29</a><a href="#play-1">DCSS trunk</a>`

func pump(ctx context.Context, t *testing.T, c *Conn, done func() bool) {
	t.Helper()
	for !done() {
		msgs, err := c.Read(ctx)
		require.NoError(t, err)
		for _, m := range msgs {
			_, err := c.Handle(ctx, m)
			require.NoError(t, err)
		}
	}
}

func TestConn_EndToEndV1(t *testing.T) {
	chatCh := make(chan string, 1)
	srv := wtserver.New(func(s *wtserver.Session, msg map[string]any) {
		switch msg["msg"] {
		case "login":
			_ = s.Send(wtserver.Batch(
				wtserver.Msg("login_success", nil),
				wtserver.Msg("set_game_links", map[string]any{"content": catalogHTML}),
				wtserver.Msg("lobby_entry", map[string]any{
					"username": "xom", "game_id": "1", "id": 7,
					"idle_time": 0, "spectator_count": 3,
				}),
				wtserver.Msg("lobby_complete", nil),
			))
		case "watch":
			_ = s.Send(wtserver.Msg("watching_started", nil))
			_ = s.Send(wtserver.Msg("update_spectators", map[string]any{"names": "greedo, sigmund"}))
		case "chat_msg":
			chatCh <- msg["text"].(string)
			_ = s.Send(wtserver.Msg("game_ended", nil))
		}
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := New(Config{})
	creds := &Credentials{Username: "greedo", Password: "pw"}
	require.NoError(t, c.Connect(ctx, srv.URL(), creds, V1))
	defer c.Disconnect()

	require.Error(t, c.Connect(ctx, srv.URL(), nil, V1), "second connect must fail")

	pump(ctx, t, c, func() bool {
		return c.LoggedIn() && c.LobbyCompletion() == CompletionComplete
	})
	require.Equal(t, GameCatalog{"DCSS 0.29": "0", "DCSS trunk": "1"}, c.Games())
	entry, ok := c.Lobby().Entry("xom", "1")
	require.True(t, ok)
	require.EqualValues(t, 7, entry.ID)
	require.Equal(t, 3, entry.SpectatorCount)

	// Chat is refused until the server confirms the watch.
	require.ErrorIs(t, c.SendChat(ctx, "too early"), ErrNotWatching)

	require.NoError(t, c.SendWatchGame(ctx, "xom", "1"))
	pump(ctx, t, c, func() bool { return c.Watch().Watching() })
	require.Equal(t, []string{"sigmund"}, c.Watch().Spectators(), "own username must be excluded")

	require.NoError(t, c.SendChat(ctx, "go xom!"))
	select {
	case text := <-chatCh:
		require.Equal(t, "go xom!", text)
	case <-ctx.Done():
		t.Fatal("server never received the chat message")
	}

	pump(ctx, t, c, func() bool { return !c.Watch().Watching() })

	require.NoError(t, c.SendStopWatching(ctx))
	require.NoError(t, c.Disconnect())
	require.False(t, c.Connected())
}

func TestConn_DropsNonJSONFrames(t *testing.T) {
	srv := wtserver.New(func(s *wtserver.Session, msg map[string]any) {
		if msg["msg"] == "login" {
			_ = s.SendRaw([]byte("this is not json"))
			_ = s.Send(wtserver.Msg("ping", nil))
		}
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := New(Config{})
	require.NoError(t, c.Connect(ctx, srv.URL(), &Credentials{Username: "greedo", Password: "pw"}, V1))
	defer c.Disconnect()

	// The garbage frame is dropped without error, and the shared inflate
	// context stays intact for the frame after it.
	msgs, err := c.Read(ctx)
	require.NoError(t, err)
	require.Nil(t, msgs)

	msgs, err = c.Read(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.MsgPing, msgs[0].Type)
}
