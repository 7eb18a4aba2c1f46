package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"slidecast/internal/models"
)

// Controller maintains a reconnecting presenter connection to the hub. It
// mirrors broadcast state through callbacks and exposes senders for
// navigation, drawing and reload. Senders are no-ops while disconnected.
type Controller struct {
	url string
	key string
	log *zap.Logger

	ReconnectDelay time.Duration

	// Callbacks run on the controller's event loop; they must not block.
	OnConfig    func(config map[string]any)
	OnState     func(state map[string]any)
	OnSync      func(displays, presenters int)
	OnQuestions func(questions []models.Question)
	// OnFirstSlide fires at most once per controller, on the first state
	// broadcast that names a slide.
	OnFirstSlide func()
	// OnStaleSession fires when a state broadcast carries a sessionId that
	// differs from the one this controller saw in its config push.
	OnStaleSession func()

	dialer *websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	sessionID  string
	firstSlide bool
	stop       chan struct{}
	stopped    bool
	started    bool
}

func NewController(url, key string, log *zap.Logger) *Controller {
	return &Controller{
		url:            url,
		key:            key,
		log:            log,
		ReconnectDelay: defaultReconnectDelay,
		dialer:         websocket.DefaultDialer,
		stop:           make(chan struct{}),
	}
}

func (c *Controller) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	go c.run()
}

func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stop)
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Command sends a navigation command. Goto navigation uses Goto instead.
func (c *Controller) Command(action string) {
	c.send(models.Envelope{Type: "command", Action: action})
}

func (c *Controller) Goto(hash string) {
	c.send(models.Envelope{Type: "command", Action: "goto", Hash: hash})
}

// Draw forwards an annotation payload untouched.
func (c *Controller) Draw(payload map[string]any) {
	if payload == nil {
		return
	}
	payload["type"] = "draw"
	c.send(payload)
}

func (c *Controller) Reload() {
	c.send(models.Envelope{Type: "reload"})
}

func (c *Controller) send(v any) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(v); err != nil {
		c.log.Debug("presenter send failed", zap.Error(err))
	}
}

func (c *Controller) run() {
	for {
		conn, _, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			c.log.Debug("presenter connect failed", zap.Error(err))
		} else {
			c.session(conn)
		}

		select {
		case <-c.stop:
			return
		case <-time.After(c.ReconnectDelay):
		}
	}
}

func (c *Controller) session(conn *websocket.Conn) {
	register := models.Envelope{Type: "register", Role: models.RolePresenter, Key: c.key}
	if err := conn.WriteJSON(register); err != nil {
		conn.Close()
		return
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(data)
	}
}

func (c *Controller) dispatch(data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Type {
	case "config":
		var frame models.ConfigFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return
		}
		if id, ok := frame.Config["sessionId"].(string); ok {
			c.mu.Lock()
			c.sessionID = id
			c.mu.Unlock()
		}
		if c.OnConfig != nil {
			c.OnConfig(frame.Config)
		}

	case "state":
		var state map[string]any
		if err := json.Unmarshal(data, &state); err != nil {
			return
		}
		if c.staleSession(state) {
			if c.OnStaleSession != nil {
				c.OnStaleSession()
			}
			return
		}
		if c.OnState != nil {
			c.OnState(state)
		}
		if _, ok := state["slideId"]; ok {
			c.mu.Lock()
			first := !c.firstSlide
			c.firstSlide = true
			c.mu.Unlock()
			if first && c.OnFirstSlide != nil {
				c.OnFirstSlide()
			}
		}

	case "sync":
		var frame models.SyncFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return
		}
		if c.OnSync != nil {
			c.OnSync(frame.Displays, frame.Presenters)
		}

	case "questions":
		var frame models.QuestionsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return
		}
		if c.OnQuestions != nil {
			c.OnQuestions(frame.Questions)
		}

	case "reload":
		// Reloads target displays; the presenter console stays up.
	}
}

// staleSession reports whether a state broadcast belongs to a different
// server instance than the one whose config this controller received.
func (c *Controller) staleSession(state map[string]any) bool {
	id, ok := state["sessionId"].(string)
	if !ok || id == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID != "" && id != c.sessionID
}
