package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketHandler defines venue specific logic for the BaseWSWorker.
type WebSocketHandler interface {
	URL() string
	ID() string
	OnConnect(ctx context.Context, conn *websocket.Conn) error
	// OnMessage handles one frame. Returning an error ends the stream.
	OnMessage(ctx context.Context, msg []byte) error
	// OnClose is called exactly once when the worker gives up. err is nil
	// when the worker was stopped by its owner.
	OnClose(err error)
}

// BaseWSWorker manages the lifecycle of a WebSocket connection: dial,
// read deadlines, keepalive pings, thread-safe writes and bounded reconnects.
type BaseWSWorker struct {
	handler WebSocketHandler
	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	closeOnce sync.Once

	ReadTimeout  time.Duration
	PingInterval time.Duration
	// MaxRetries bounds consecutive reconnect attempts after the connection
	// drops. 0 ends the stream on the first drop; negative retries forever.
	MaxRetries int
	Backoff    func(retry int) time.Duration
}

// NewBaseWSWorker creates a new generic WebSocket worker.
func NewBaseWSWorker(handler WebSocketHandler) *BaseWSWorker {
	return &BaseWSWorker{
		handler:      handler,
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
		Backoff:      CalculateBackoff,
	}
}

// Connect dials once and runs the handler's OnConnect. It lets callers
// surface handshake failures before Start.
func (w *BaseWSWorker) Connect(ctx context.Context) error {
	return w.connect(ctx)
}

// Start runs the read loop in the background, dialing first if Connect
// was not called.
func (w *BaseWSWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop terminates the worker and waits for its goroutines.
func (w *BaseWSWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.close()
	w.wg.Wait()
	w.finish(nil)
}

// Connected reports whether a connection is currently open.
func (w *BaseWSWorker) Connected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn != nil
}

func (w *BaseWSWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	retry := 0

	for {
		if ctx.Err() != nil {
			w.finish(nil)
			return
		}

		if !w.Connected() {
			if err := w.connect(ctx); err != nil {
				if ctx.Err() != nil {
					w.finish(nil)
					return
				}
				if w.MaxRetries >= 0 && retry >= w.MaxRetries {
					w.finish(fmt.Errorf("ws %s: connect: %w", w.handler.ID(), err))
					return
				}
				delay := w.Backoff(retry)
				slog.Warn("WS Connection failed", "id", w.handler.ID(), "err", err, "retry", retry, "delay", delay)
				retry++

				select {
				case <-ctx.Done():
					w.finish(nil)
					return
				case <-time.After(delay):
					continue
				}
			}
			retry = 0
		}

		err := w.process(ctx)
		if ctx.Err() != nil {
			w.finish(nil)
			return
		}
		if w.MaxRetries == 0 {
			w.finish(err)
			return
		}
		slog.Info("WS Reconnecting", "id", w.handler.ID(), "err", err)
	}
}

func (w *BaseWSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)
	header.Set("User-Agent", GetUserAgent())

	conn, _, err := dialer.DialContext(ctx, w.handler.URL(), header)
	if err != nil {
		return err
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.ReadTimeout))
	})

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.handler.OnConnect(ctx, conn); err != nil {
		w.close()
		return fmt.Errorf("OnConnect failed: %w", err)
	}

	slog.Info("WS Connected", "id", w.handler.ID())
	return nil
}

func (w *BaseWSWorker) process(ctx context.Context) error {
	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()
	if c == nil {
		return errors.New("ws not connected")
	}

	if w.PingInterval > 0 {
		pingCtx, stopPing := context.WithCancel(ctx)
		defer stopPing()
		go w.pingLoop(pingCtx, c)
	}

	for {
		c.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("WS Read error", "id", w.handler.ID(), "err", err)
			}
			w.close()
			return err
		}

		if err := w.handler.OnMessage(ctx, msg); err != nil {
			if ctx.Err() == nil {
				slog.Warn("WS Handler error", "id", w.handler.ID(), "err", err)
			}
			w.close()
			return err
		}
	}
}

func (w *BaseWSWorker) pingLoop(ctx context.Context, c *websocket.Conn) {
	ticker := time.NewTicker(w.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.writeMu.Lock()
			err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			w.writeMu.Unlock()
			if err != nil {
				slog.Warn("WS Ping error", "id", w.handler.ID(), "err", err)
				w.close()
				return
			}
		}
	}
}

// Write sends one frame on the current connection.
func (w *BaseWSWorker) Write(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()

	if c == nil {
		return fmt.Errorf("ws not connected")
	}

	return c.WriteMessage(msgType, data)
}

func (w *BaseWSWorker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

func (w *BaseWSWorker) finish(err error) {
	w.closeOnce.Do(func() {
		w.close()
		w.handler.OnClose(err)
	})
}
