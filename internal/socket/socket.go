package socket

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// DefaultURL is the WhatsApp multi-device WebSocket endpoint.
const DefaultURL = "wss://web.whatsapp.com/ws/chat"

// Socket owns the WebSocket connection and the framing/prologue state
// layered on top of it. One Socket exists per Connection.
type Socket struct {
	log *zap.SugaredLogger
	url string

	mu           sync.Mutex // serializes writes
	conn         *websocket.Conn
	decoder      FrameDecoder
	prologueSent bool

	// RoutingInfo, when set before the first WriteFrame, is sent as a
	// sticky-routing prefix ahead of the Noise prologue. Must be set
	// before Dial's first frame goes out; it is read without the mutex
	// held because callers set it before the connection is used.
	RoutingInfo []byte

	OnFrame func(payload []byte)
	OnClose func(err error)
}

func New(log *zap.SugaredLogger, url string) *Socket {
	if url == "" {
		url = DefaultURL
	}
	return &Socket{log: log, url: url}
}

// Dial opens the WebSocket connection. It does not send the prologue;
// that happens lazily on the first WriteFrame so the noise handshake
// driver controls exactly when it goes out.
func (s *Socket) Dial(ctx context.Context) error {
	opts := &websocket.DialOptions{
		Subprotocols: []string{"chat"},
	}
	conn, _, err := websocket.Dial(ctx, s.url, opts)
	if err != nil {
		return fmt.Errorf("socket: dial: %w", err)
	}
	conn.SetReadLimit(MaxFrameSize * 2)
	s.mu.Lock()
	s.conn = conn
	s.prologueSent = false
	s.mu.Unlock()
	s.log.Debugw("websocket dialed", "url", s.url)
	return nil
}

// WriteFrame length-prefixes payload, prepending the Noise prologue the
// first time it's called on this connection, and writes it as a single
// binary WebSocket message.
func (s *Socket) WriteFrame(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("socket: not connected")
	}
	var header []byte
	if !s.prologueSent {
		header = append(header, EncodeRoutingPrologue(s.RoutingInfo)...)
		header = append(header, NoiseWAHeader...)
	}
	framed, err := EncodeFrame(header, payload)
	if err != nil {
		return err
	}
	if err := s.conn.Write(ctx, websocket.MessageBinary, framed); err != nil {
		return fmt.Errorf("socket: write: %w", err)
	}
	s.prologueSent = true
	return nil
}

// ReadLoop blocks reading WebSocket messages until ctx is cancelled or
// the connection closes, feeding bytes through the frame decoder and
// invoking OnFrame for each complete frame. It runs on its own
// goroutine as the connection's single receive-pipeline task.
func (s *Socket) ReadLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if s.OnClose != nil {
				s.OnClose(err)
			}
			return
		}
		frames, err := s.decoder.Feed(data)
		if err != nil {
			s.log.Errorw("frame decode failed", "error", err)
			if s.OnClose != nil {
				s.OnClose(err)
			}
			return
		}
		for _, f := range frames {
			if s.OnFrame != nil {
				s.OnFrame(f)
			}
		}
	}
}

func (s *Socket) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(websocket.StatusNormalClosure, "closing")
	s.conn = nil
	return err
}
