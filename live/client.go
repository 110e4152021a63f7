// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package live

import (
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// client is a single websocket connection.
type client struct {
	socket *websocket.Conn
	// send is a channel on which messages are sent. Only the hub closes it.
	send chan []byte
}

func (c *client) String() string {
	return c.socket.RemoteAddr().String()
}

// read discards everything the browser sends and returns once the
// connection is gone.
func (c *client) read() {
	defer c.socket.Close()
	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			return
		}
	}
}

// write sends queued messages until the hub closes send.
func (c *client) write() {
	defer c.socket.Close()
	for msg := range c.send {
		_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.socket.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}
