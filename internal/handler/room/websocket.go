package room

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	roomService "github.com/wutongtree/backend/internal/service/room"
	"github.com/wutongtree/backend/pkg/log"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type textMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	RoomID    string      `json:"roomId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket 双向通道：客户端推送识别片段与控制指令，服务端推送房间事件。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.room(w, r)
	if !ok {
		return
	}

	events, unsubscribe, err := rm.Subscribe()
	if err != nil {
		h.respondRoomError(w, err)
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("[websocket] upgrade failed: %v", err)
		return
	}
	id := h.connections.Add(rm.ID(), conn)
	defer h.connections.Remove(rm.ID(), id)

	log.Infof("[websocket] new connection for room: %s", rm.ID())

	out := make(chan outgoingMessage, 16)
	done := make(chan struct{})
	go h.writeLoop(conn, rm.ID(), events, out, done)

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("[websocket] read error: %v", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		reply := h.handleInbound(rm, msg)
		select {
		case out <- reply:
		case <-done:
		}
	}
	close(out)
	<-done
}

func (h *Handler) handleInbound(rm *roomService.Room, msg inboundMessage) outgoingMessage {
	result := func(data interface{}) outgoingMessage {
		return outgoingMessage{Type: "result", RoomID: rm.ID(), Data: data, Timestamp: time.Now().Unix()}
	}
	fail := func(err error) outgoingMessage {
		_, message := statusFor(err)
		return outgoingMessage{Type: "error", RoomID: rm.ID(), Data: map[string]string{"message": message}, Timestamp: time.Now().Unix()}
	}

	switch msg.Type {
	case "transcript":
		var text textMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil || text.Text == "" {
			return outgoingMessage{Type: "error", Data: map[string]string{"message": "invalid transcript payload"}, Timestamp: time.Now().Unix()}
		}
		if err := rm.PushTranscript(text.Text); err != nil {
			return fail(err)
		}
		return result(map[string]any{"type": "transcript", "accepted": true})
	case "listen_start":
		if err := rm.StartListening(); err != nil {
			return fail(err)
		}
		return result(map[string]any{"type": "listen_start", "listening": true})
	case "listen_stop":
		m, err := rm.StopListening()
		if err != nil {
			return fail(err)
		}
		return result(map[string]any{"type": "listen_stop", "message": m})
	case "mute":
		muted, err := rm.ToggleMute()
		if err != nil {
			return fail(err)
		}
		return result(map[string]any{"type": "mute", "muted": muted})
	default:
		return outgoingMessage{Type: "error", Data: map[string]string{"message": "unsupported message type: " + msg.Type}, Timestamp: time.Now().Unix()}
	}
}

// writeLoop 是连接唯一的写者：房间事件、请求回复与 ping 都从这里发出。
func (h *Handler) writeLoop(conn *websocket.Conn, roomID string, events <-chan roomService.Event, out <-chan outgoingMessage, done chan<- struct{}) {
	defer close(done)

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	write := func(msg outgoingMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debugf("[websocket] write failed room=%s: %v", roomID, err)
			return false
		}
		return true
	}

	for {
		select {
		case msg, ok := <-out:
			if !ok {
				return
			}
			if !write(msg) {
				conn.Close()
				return
			}
		case ev, ok := <-events:
			if !ok {
				// 房间已结束
				write(outgoingMessage{Type: string(roomService.EventEnded), RoomID: roomID, Timestamp: time.Now().Unix()})
				conn.Close()
				return
			}
			if !write(outgoingMessage{Type: "event", RoomID: roomID, Data: ev, Timestamp: time.Now().Unix()}) {
				conn.Close()
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}
