/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// WSChannel carries signaling messages over a websocket.
type WSChannel struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
	closed  chan struct{}
}

// Accept upgrades an HTTP request to a signaling channel.
func Accept(w http.ResponseWriter, r *http.Request, originPatterns []string) (*WSChannel, error) {
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns,
	})
	if err != nil {
		return nil, fmt.Errorf("websocket accept: %w", err)
	}
	return NewWSChannel(conn), nil
}

// NewWSChannel wraps an established connection.
func NewWSChannel(conn *websocket.Conn) *WSChannel {
	return &WSChannel{conn: conn, closed: make(chan struct{})}
}

// Send writes msg. Concurrent senders are serialised.
func (c *WSChannel) Send(ctx context.Context, msg Message) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

// Receive reads the next message. A normal close is reported as
// ErrChannelClosed. A frame that is not a valid message yields
// ErrMalformedMessage and leaves the connection open for the next read.
func (c *WSChannel) Receive(ctx context.Context) (Message, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) != -1 {
			return Message{}, ErrChannelClosed
		}
		select {
		case <-c.closed:
			return Message{}, ErrChannelClosed
		default:
		}
		return Message{}, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}

// Close closes the websocket. Calling it more than once is harmless.
func (c *WSChannel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.conn.Close(websocket.StatusNormalClosure, "")
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			err = nil
		}
	})
	return err
}
