package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 64 << 10
	readBufferSize = 4096
)

// Upgrader accepts any origin; authentication is by token.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  readBufferSize,
	WriteBufferSize: readBufferSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Serve runs the connection until the peer goes away: frames read are passed
// to handle, frames queued on c.Send are written out. The caller owns
// cleanup (typically Gateway.Leave) after Serve returns.
func Serve(conn *websocket.Conn, c *Client, handle func(raw []byte)) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(conn, c)
	}()
	readPump(conn, handle)
	// Unblock the writer if it is still waiting on Send.
	c.Close()
	<-done
}

// writePump copies messages from c.Send to the connection.
func writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readPump(conn *websocket.Conn, handle func(raw []byte)) {
	conn.SetReadLimit(maxFrameBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		handle(raw)
	}
}
