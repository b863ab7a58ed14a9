package gossip

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
)

// maxFrameBytes bounds a single frame so a misbehaving peer cannot make us
// allocate an unbounded buffer from a forged length prefix.
const maxFrameBytes = 16 << 20 // 16MiB

// WriteFrame serializes state as JSON and writes it to conn prefixed with
// its length as a 4-byte big-endian unsigned integer -- the length-delimited
// framing named on the wire.
func WriteFrame(conn net.Conn, state NetworkState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))

	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := conn.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON frame from conn and decodes it
// into a NetworkState.
func ReadFrame(conn net.Conn) (NetworkState, error) {
	var state NetworkState

	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return state, err
	}

	length := binary.BigEndian.Uint32(header)
	if length > maxFrameBytes {
		return state, fmt.Errorf("frame too large: %d bytes", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(conn, body); err != nil {
		return state, fmt.Errorf("read frame body: %w", err)
	}

	if err := json.Unmarshal(body, &state); err != nil {
		return state, fmt.Errorf("decode frame: %w", err)
	}
	return state, nil
}
