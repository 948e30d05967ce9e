package webtiles

import "errors"

// State errors: the operation is valid, but not in the connection's
// current state. None of them mutate any connection state.
var ErrAlreadyConnected = errors.New("webtiles: already connected")
var ErrNotConnected = errors.New("webtiles: not connected")
var ErrNotLoggedIn = errors.New("webtiles: not logged in")
var ErrNotWatching = errors.New("webtiles: not watching a game")
