package server_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/alfielabs/alfie-voice/internal/bridge"
	"github.com/alfielabs/alfie-voice/internal/server"
	"github.com/alfielabs/alfie-voice/pkg/audio"
)

type testFrame struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"`
}

// echoSession reads one audio chunk and writes it straight back.
func echoSession(ctx context.Context, _ string, client bridge.ClientConn) error {
	pcm, err := client.ReadAudio(ctx)
	if err != nil {
		return err
	}
	if err := client.WriteAudio(pcm); err != nil {
		return err
	}
	return client.Close()
}

func newTestServer(t *testing.T, sessions server.SessionFunc) *httptest.Server {
	t.Helper()
	s := server.New(":0", sessions)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestVoice_EchoRoundTrip(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, echoSession)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, ts.URL+"/v1/voice?user_id=u1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	out := testFrame{Type: "audio", Audio: audio.EncodeTransport(pcm)}
	if err := wsjson.Write(ctx, conn, out); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	var in testFrame
	if err := wsjson.Read(ctx, conn, &in); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if in.Type != "audio" {
		t.Fatalf("frame type = %q, want audio", in.Type)
	}
	got, err := audio.DecodeTransport(in.Audio)
	if err != nil {
		t.Fatalf("decode echoed audio: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("echoed audio = %v, want %v", got, pcm)
	}
}

func TestVoice_SkipsNonAudioFrames(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, echoSession)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, ts.URL+"/v1/voice?user_id=u1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// A control frame the session does not understand is skipped, the audio
	// frame after it is still echoed.
	if err := wsjson.Write(ctx, conn, testFrame{Type: "ping"}); err != nil {
		t.Fatalf("write ping frame: %v", err)
	}
	pcm := []byte{0x0a, 0x0b}
	if err := wsjson.Write(ctx, conn, testFrame{Type: "audio", Audio: audio.EncodeTransport(pcm)}); err != nil {
		t.Fatalf("write audio frame: %v", err)
	}

	var in testFrame
	if err := wsjson.Read(ctx, conn, &in); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	got, err := audio.DecodeTransport(in.Audio)
	if err != nil {
		t.Fatalf("decode echoed audio: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("echoed audio = %v, want %v", got, pcm)
	}
}

func TestVoice_MissingUserID(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, echoSession)

	resp, err := http.Get(ts.URL + "/v1/voice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, echoSession)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}
