package room

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Connections WebSocket连接管理器，按房间归组
type Connections struct {
	mu     sync.RWMutex
	nextID int
	rooms  map[string]map[int]*websocket.Conn
}

// NewConnections 创建连接管理器
func NewConnections() *Connections {
	return &Connections{rooms: make(map[string]map[int]*websocket.Conn)}
}

// Add 登记连接，返回用于注销的编号
func (c *Connections) Add(roomID string, conn *websocket.Conn) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	conns, ok := c.rooms[roomID]
	if !ok {
		conns = make(map[int]*websocket.Conn)
		c.rooms[roomID] = conns
	}
	conns[c.nextID] = conn
	return c.nextID
}

// Remove 注销并关闭连接
func (c *Connections) Remove(roomID string, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conns, ok := c.rooms[roomID]
	if !ok {
		return
	}
	if conn, exists := conns[id]; exists {
		conn.Close()
		delete(conns, id)
	}
	if len(conns) == 0 {
		delete(c.rooms, roomID)
	}
}

// Count 房间当前的连接数
func (c *Connections) Count(roomID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rooms[roomID])
}

// CloseRoom 关闭房间的所有连接
func (c *Connections) CloseRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, conn := range c.rooms[roomID] {
		conn.Close()
	}
	delete(c.rooms, roomID)
}

// CloseAll 关闭所有连接
func (c *Connections) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for roomID, conns := range c.rooms {
		for _, conn := range conns {
			conn.Close()
		}
		delete(c.rooms, roomID)
	}
}
