package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"

	"github.com/alfielabs/alfie-voice/pkg/audio"
)

// writeTimeout bounds a single outbound frame write.
const writeTimeout = 10 * time.Second

// frame is the JSON envelope exchanged with the browser or app client.
// Audio payloads are base64-encoded little-endian PCM16.
type frame struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"`
}

const frameTypeAudio = "audio"

// wsConn adapts a client websocket to the bridge's transport contract.
type wsConn struct {
	conn *websocket.Conn
}

// ReadAudio blocks until the next audio frame arrives and returns its decoded
// PCM payload. Frames of any other type are skipped.
func (c *wsConn) ReadAudio(ctx context.Context) ([]byte, error) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("server: read client frame: %w", err)
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("server: decode client frame: %w", err)
		}
		if f.Type != frameTypeAudio {
			continue
		}

		pcm, err := audio.DecodeTransport(f.Audio)
		if err != nil {
			return nil, fmt.Errorf("server: decode client audio: %w", err)
		}
		return pcm, nil
	}
}

// WriteAudio sends one PCM chunk to the client as a base64 audio frame.
func (c *wsConn) WriteAudio(pcm []byte) error {
	data, err := json.Marshal(frame{Type: frameTypeAudio, Audio: audio.EncodeTransport(pcm)})
	if err != nil {
		return fmt.Errorf("server: encode audio frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("server: write audio frame: %w", err)
	}
	return nil
}

// Close performs a normal websocket closure.
func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "session ended")
}
