// Package tts holds concrete TTS Provider implementations consumed by
// pkg/tts.Streamer.
package tts

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// LokutorProvider streams synthesis over a persistent websocket connection
// to the Lokutor TTS endpoint, satisfying pkg/tts.Provider.
type LokutorProvider struct {
	apiKey string
	host   string
	scheme string
	voice  string
	lang   string

	mu   sync.Mutex
	conn *websocket.Conn

	abortMu sync.Mutex
	aborted map[string]bool
}

// NewLokutorProvider constructs a LokutorProvider for apiKey, with voice and
// lang applied to every synthesis request.
func NewLokutorProvider(apiKey, voice, lang string) *LokutorProvider {
	if voice == "" {
		voice = "default"
	}
	if lang == "" {
		lang = "en"
	}
	return &LokutorProvider{
		apiKey:  apiKey,
		host:    "api.lokutor.com",
		scheme:  "wss",
		voice:   voice,
		lang:    lang,
		aborted: map[string]bool{},
	}
}

func (t *LokutorProvider) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	u := url.URL{Scheme: t.scheme, Host: t.host, Path: "/ws", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to lokutor: %w", err)
	}

	t.conn = conn
	return conn, nil
}

// StreamSynthesize sends one synthesis request and streams the resulting
// audio chunks to onChunk as they arrive, returning once the server signals
// end of stream.
func (t *LokutorProvider) StreamSynthesize(ctx context.Context, text string, onChunk func([]byte) error) error {
	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	req := map[string]interface{}{
		"text":    text,
		"voice":   t.voice,
		"lang":    t.lang,
		"speed":   1.05,
		"steps":   5,
		"version": "versa-1.0",
	}

	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.conn = nil
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return fmt.Errorf("failed to send synthesis request: %w", err)
	}

	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.conn = nil
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return fmt.Errorf("failed to read from lokutor: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onChunk(payload); err != nil {
				return err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return fmt.Errorf("lokutor error: %s", msg)
			}
		}
	}
}

// Abort records sessionID in the aborted set and closes and drops the
// shared connection so the next StreamSynthesize call reconnects, since the
// Lokutor protocol has no per-request cancel message. The aborted set is
// not consulted by StreamSynthesize, and Abort takes the same lock that
// StreamSynthesize holds for a whole request, so it does not interrupt a
// stream in progress; it takes effect once that stream has returned.
func (t *LokutorProvider) Abort(sessionID string) error {
	t.abortMu.Lock()
	t.aborted[sessionID] = true
	t.abortMu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "aborted")
		t.conn = nil
		return err
	}
	return nil
}

func (t *LokutorProvider) Name() string {
	return "lokutor"
}

// Close releases the underlying connection, if any.
func (t *LokutorProvider) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "")
		t.conn = nil
		return err
	}
	return nil
}
