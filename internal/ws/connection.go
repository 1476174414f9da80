package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"proptalk/internal/models"

	"github.com/gorilla/websocket"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

const (
	defaultSendBuffer   = 64
	defaultWriteTimeout = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = (pongWait * 9) / 10
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
}

type lifecycle interface {
	Open(c Handle)
	Close(c Handle)
}

type messageRouter interface {
	Send(ctx context.Context, senderID, receiverID, body string) (models.Message, error)
}

type ConnectionConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
}

type Connection struct {
	ws           wsConnection
	hub          lifecycle
	router       messageRouter
	userID       string
	writeTimeout time.Duration
	fromClient   chan models.ClientMessage
	fromServer   chan models.ServerMessage
	errorCh      chan error
	done         chan struct{}
	closeOnce    sync.Once
}

func NewConnection(
	hub lifecycle,
	router messageRouter,
	ws wsConnection,
	userID string,
	cfg ConnectionConfig,
) *Connection {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Connection{
		ws:           ws,
		hub:          hub,
		router:       router,
		userID:       userID,
		writeTimeout: cfg.WriteTimeout,
		fromClient:   make(chan models.ClientMessage),
		fromServer:   make(chan models.ServerMessage, cfg.SendBuffer),
		errorCh:      make(chan error, 2),
		done:         make(chan struct{}),
	}
}

func (c *Connection) Identity() string {
	return c.userID
}

// Push never blocks: when the client is too slow to drain its buffer the event is dropped.
func (c *Connection) Push(msg models.ServerMessage) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.fromServer <- msg:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Handle registers the connection with the hub and serves it until the client
// goes away, the context is cancelled or the connection is closed.
func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.hub.Open(c)
	defer func() {
		c.Close()
		c.hub.Close(c)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
		// Both loops report before cancelling, so a failure is already queued.
		select {
		case err = <-c.errorCh:
		default:
		}
	}
	_ = c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrConnectionClosed) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var msg models.ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return err
		}
		select {
		case c.fromClient <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.fromClient:
			if err := c.processClientMessage(ctx, msg); err != nil {
				return err
			}
		case msg := <-c.fromServer:
			if err := c.write(msg); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				return err
			}
		case <-c.done:
			return ErrConnectionClosed
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) write(msg models.ServerMessage) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(msg)
}

func (c *Connection) processClientMessage(ctx context.Context, msg models.ClientMessage) error {
	switch msg.Type {
	case models.ClientMessageTypeSend:
		if c.userID == "" {
			return c.write(models.ServerMessage{
				Type:  models.ServerMessageTypeError,
				Error: "anonymous connections cannot send messages",
			})
		}
		sent, err := c.router.Send(ctx, c.userID, msg.ReceiverID, msg.Body)
		if err != nil {
			slog.Debug("live send rejected", "user_id", c.userID, "receiver_id", msg.ReceiverID, "error", err)
			return c.write(models.ServerMessage{
				Type:  models.ServerMessageTypeError,
				Error: models.PublicMessage(err),
			})
		}
		return c.write(models.ServerMessage{
			Type:    models.ServerMessageTypeSent,
			Message: &sent,
		})
	default:
		return c.write(models.ServerMessage{
			Type:  models.ServerMessageTypeError,
			Error: "unknown message type",
		})
	}
}
