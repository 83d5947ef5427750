package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"taskboard-server/internal/config"
	"taskboard-server/internal/domain"

	"github.com/sirupsen/logrus"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Manager tracks live connections per user. Run owns registration; the
// broadcast path only takes the read lock.
type Manager struct {
	clients        map[string]*Client
	userIndex      map[string]map[string]bool
	clientsMutex   sync.RWMutex
	Register       chan *Client
	Unregister     chan *Client
	HandleMessage  chan *ClientMessage
	done           chan struct{}
	maxConnPerUser int
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	log            logrus.FieldLogger
}

func NewManager(cfg config.WebSocketConfig, log logrus.FieldLogger) *Manager {
	return &Manager{
		clients:        make(map[string]*Client),
		userIndex:      make(map[string]map[string]bool),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		HandleMessage:  make(chan *ClientMessage),
		done:           make(chan struct{}),
		maxConnPerUser: cfg.MaxConnPerUser,
		writeWait:      cfg.WriteWait,
		pongWait:       cfg.PongWait,
		pingPeriod:     cfg.PingPeriod,
		log:            log.WithField("component", "websocket"),
	}
}

// Run serves registration and inbound messages until ctx is cancelled.
// It must be called at most once.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return

		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

// AddClient hands client to Run. It reports false once Run has returned.
func (m *Manager) AddClient(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

// RemoveClient hands client to Run for unregistration. After Run has
// returned every connection is already closed and this is a no-op.
func (m *Manager) RemoveClient(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) dispatch(msg *ClientMessage) bool {
	select {
	case m.HandleMessage <- msg:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.userIndex[client.UserID] == nil {
		m.userIndex[client.UserID] = make(map[string]bool)
	}

	if m.maxConnPerUser > 0 && len(m.userIndex[client.UserID]) >= m.maxConnPerUser {
		m.log.WithField("user_id", client.UserID).Warn("max connections reached")
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.userIndex[client.UserID][client.ID] = true

	m.log.WithFields(logrus.Fields{
		"client_id": client.ID,
		"user_id":   client.UserID,
	}).Debug("client registered")
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		delete(m.userIndex[client.UserID], client.ID)

		if len(m.userIndex[client.UserID]) == 0 {
			delete(m.userIndex, client.UserID)
		}

		close(client.Send)
		m.log.WithField("client_id", client.ID).Debug("client unregistered")
	}
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for id, client := range m.clients {
		close(client.Send)
		delete(m.clients, id)
	}
	m.userIndex = make(map[string]map[string]bool)
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.reply(clientMsg.Client, TypeError, &ErrorPayload{Error: "malformed message"})
		return
	}

	switch msg.Type {
	case TypePing:
		m.reply(clientMsg.Client, TypePong, nil)
	default:
		m.log.WithField("type", msg.Type).Debug("ignoring unknown message type")
	}
}

// reply runs on the Run goroutine, which also owns unregistration, so the
// client's Send channel is still open here.
func (m *Manager) reply(client *Client, msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return
	}
	bytes, err := json.Marshal(msg)
	if err != nil {
		return
	}

	m.clientsMutex.RLock()
	_, live := m.clients[client.ID]
	m.clientsMutex.RUnlock()
	if !live {
		return
	}

	select {
	case client.Send <- bytes:
	default:
		m.log.WithField("client_id", client.ID).Warn("send buffer full")
	}
}

// Publish delivers a task event to every connection of the task owner.
func (m *Manager) Publish(ctx context.Context, event domain.TaskEvent) error {
	msg, err := NewMessage(MessageType(event.Type), &TaskPayload{TaskID: event.TaskID, Task: event.Task})
	if err != nil {
		return err
	}
	msg.Timestamp = event.OccurredAt

	return m.BroadcastToUser(event.UserID, msg)
}

func (m *Manager) BroadcastToUser(userID string, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var stalled []*Client

	m.clientsMutex.RLock()
	for clientID := range m.userIndex[userID] {
		client := m.clients[clientID]
		select {
		case client.Send <- messageBytes:
		default:
			stalled = append(stalled, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range stalled {
		m.log.WithField("client_id", client.ID).Warn("send buffer full, closing connection")
		go m.RemoveClient(client)
	}

	return nil
}

func (m *Manager) GetUserConnections(userID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.userIndex[userID])
}
