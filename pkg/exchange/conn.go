package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Conn wraps a websocket with the bookkeeping every adapter needs: a session
// id for log correlation, serialized writes and a staleness deadline that
// fails the read loop when the exchange goes quiet.
type Conn struct {
	sessionID string
	ws        *websocket.Conn
	writeMu   sync.Mutex
	stale     time.Duration
	logger    zerolog.Logger
}

// Dial opens a websocket session to url
func Dial(ctx context.Context, url string, stale time.Duration, logger zerolog.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	sessionID := uuid.NewString()
	c := &Conn{
		sessionID: sessionID,
		ws:        ws,
		stale:     stale,
		logger:    logger.With().Str("session_id", sessionID).Str("url", url).Logger(),
	}

	// Any pong (or any frame, via ReadMessage) pushes the deadline out
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.stale))
	})
	if c.stale > 0 {
		if err := ws.SetReadDeadline(time.Now().Add(c.stale)); err != nil {
			ws.Close()
			return nil, err
		}
	}

	c.logger.Debug().Msg("Websocket connected")
	return c, nil
}

// SessionID returns the id assigned to this connection
func (c *Conn) SessionID() string {
	return c.sessionID
}

// ReadMessage blocks for the next text frame
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	if c.stale > 0 {
		if err := c.ws.SetReadDeadline(time.Now().Add(c.stale)); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// WriteJSON sends v as one JSON frame. Safe for concurrent use.
func (c *Conn) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// Ping sends a ping control frame
func (c *Conn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// Close tears the connection down
func (c *Conn) Close() error {
	c.logger.Debug().Msg("Websocket closing")
	return c.ws.Close()
}
