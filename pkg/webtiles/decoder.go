package webtiles

import (
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"io"
)

// Servers write one continuous raw-deflate stream (RFC 1951, no zlib
// header) per connection, sync-flushing after every message and stripping
// the flush marker before the frame goes out. Each frame is therefore an
// incomplete deflate block until the marker is restored.
var syncFlushTrailer = []byte{0x00, 0x00, 0xff, 0xff}

// inflateWindow is the deflate history size. A sync flush byte-aligns and
// terminates the current block, so the LZ77 window is the only inflate
// state that survives a frame boundary.
const inflateWindow = 32 << 10

// decompressor is the per-connection streaming inflate context. It is
// created on connect, must never be reset or replaced while the connection
// is open, and is discarded on disconnect. Frames decoded out of order or
// against a fresh context desynchronize the window and corrupt every
// message that follows.
type decompressor struct {
	window []byte
}

func newDecompressor() *decompressor {
	return &decompressor{}
}

// decode inflates one transport frame into the text of one server message,
// restoring the sync-flush trailer and priming the reader with the window
// accumulated from every earlier frame.
func (d *decompressor) decode(frame []byte) ([]byte, error) {
	raw := make([]byte, 0, len(frame)+len(syncFlushTrailer))
	raw = append(raw, frame...)
	raw = append(raw, syncFlushTrailer...)

	fr := flate.NewReaderDict(bytes.NewReader(raw), d.window)
	out, err := io.ReadAll(fr)
	// The stream never terminates: input stops right after the restored
	// flush marker, so running out mid-stream is the expected outcome.
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("inflate frame: %w", err)
	}
	d.remember(out)
	return out, nil
}

func (d *decompressor) remember(out []byte) {
	d.window = append(d.window, out...)
	if n := len(d.window); n > inflateWindow {
		copy(d.window, d.window[n-inflateWindow:])
		d.window = d.window[:inflateWindow]
	}
}
