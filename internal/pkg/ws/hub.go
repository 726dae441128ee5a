package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

type Hub struct {
	// 每个任务可以有多个订阅连接（多标签页、重连等场景）
	watchers map[int64]map[*Client]struct{}
	mu       sync.RWMutex
}

type Client struct {
	UserID int64
	TaskID int64
	Conn   *websocket.Conn
	mu     sync.Mutex // 写锁，防止并发写入
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		watchers: make(map[int64]map[*Client]struct{}),
	}
}

// Register 注册一个任务订阅连接
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.watchers[client.TaskID] == nil {
		h.watchers[client.TaskID] = make(map[*Client]struct{})
	}
	h.watchers[client.TaskID][client] = struct{}{}

	total := 0
	for _, conns := range h.watchers {
		total += len(conns)
	}
	log.Printf("Task %d watcher connected (user %d), task_conns: %d, total: %d",
		client.TaskID, client.UserID, len(h.watchers[client.TaskID]), total)
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.watchers[client.TaskID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.watchers, client.TaskID)
		}
	}
	log.Printf("Task %d watcher disconnected (user %d)", client.TaskID, client.UserID)
}

// SendToTask 向订阅指定任务的所有连接发送消息
func (h *Hub) SendToTask(taskID int64, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.watchers[taskID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	// 复制一份引用，避免长时间持锁
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			log.Printf("SendToTask write error for task %d: %v", taskID, err)
		}
	}
	return nil
}

// HasWatchers 检查任务是否有在线订阅者
func (h *Hub) HasWatchers(taskID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.watchers[taskID]
	return ok && len(conns) > 0
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.watchers {
		total += len(conns)
	}
	return total
}
