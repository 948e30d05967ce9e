package protocol

// Outbound requests. Every request names its type in the "msg" field.

type LoginRequest struct {
	Msg        string `json:"msg"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe *bool  `json:"rememberme,omitempty"`
}

// Login builds a login request. Protocol v2 servers expect an explicit
// rememberme flag; cookie login isn't supported, so it is always false.
func Login(username, password string, v2 bool) LoginRequest {
	req := LoginRequest{Msg: "login", Username: username, Password: password}
	if v2 {
		f := false
		req.RememberMe = &f
	}
	return req
}

type PongReply struct {
	Msg string `json:"msg"`
}

func Pong() PongReply {
	return PongReply{Msg: "pong"}
}

type WatchRequest struct {
	Msg      string `json:"msg"`
	Username string `json:"username"`
}

// Watch requests to spectate username's game. The server picks among the
// user's active games itself; no game id goes over the wire.
func Watch(username string) WatchRequest {
	return WatchRequest{Msg: "watch", Username: username}
}

type GoLobbyRequest struct {
	Msg string `json:"msg"`
}

func GoLobby() GoLobbyRequest {
	return GoLobbyRequest{Msg: "go_lobby"}
}

type ChatRequest struct {
	Msg  string `json:"msg"`
	Text string `json:"text"`
}

func Chat(text string) ChatRequest {
	return ChatRequest{Msg: "chat_msg", Text: text}
}

type SetRCRequest struct {
	Msg      string `json:"msg"`
	GameID   string `json:"game_id"`
	Contents string `json:"contents"`
}

func SetRC(gameID, contents string) SetRCRequest {
	return SetRCRequest{Msg: "set_rc", GameID: gameID, Contents: contents}
}

type GetRCRequest struct {
	Msg    string `json:"msg"`
	GameID string `json:"game_id"`
}

func GetRC(gameID string) GetRCRequest {
	return GetRCRequest{Msg: "get_rc", GameID: gameID}
}
