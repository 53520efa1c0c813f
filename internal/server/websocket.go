package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// maxFrame fits a raw game model of the default 1025 board, about 29 MiB.
// Models normally travel compressed and run far smaller.
const maxFrame = 64 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades a follower's request and feeds its frames to
// the hub until the connection drops.
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn().Err(err).Msg("ws upgrade error")
			return
		}
		conn.SetReadLimit(maxFrame)

		cl := hub.add(conn)
		if cl == nil {
			return
		}

		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					hub.log.Debug().Err(err).Str("peer", cl.id).Msg("read error")
				}
				hub.remove(cl)
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			hub.deliver(cl, msg)
		}
	}
}
