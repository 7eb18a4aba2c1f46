// Package client implements the display-side reporter and presenter-side
// controller that talk to the coordination hub over a websocket.
package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"slidecast/internal/models"
)

const (
	defaultReconnectDelay = 2 * time.Second
	defaultPollInterval   = 500 * time.Millisecond
)

// Viewport is the display's reported window size.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PageState is one complete snapshot of the display's position. Reports are
// always whole snapshots, never partial updates.
type PageState struct {
	SlideID  string    `json:"slideId,omitempty"`
	Hash     string    `json:"hash,omitempty"`
	Notes    string    `json:"notes,omitempty"`
	Viewport *Viewport `json:"viewport,omitempty"`
}

func (s PageState) equal(other PageState) bool {
	if s.SlideID != other.SlideID || s.Hash != other.Hash || s.Notes != other.Notes {
		return false
	}
	if (s.Viewport == nil) != (other.Viewport == nil) {
		return false
	}
	if s.Viewport != nil && *s.Viewport != *other.Viewport {
		return false
	}
	return true
}

// StateSource yields the current page state on each poll tick.
type StateSource interface {
	State() PageState
}

// StateFunc adapts a function to the StateSource interface.
type StateFunc func() PageState

func (f StateFunc) State() PageState { return f() }

type stateReport struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	PageState
}

// Reporter maintains a reconnecting display connection to the hub. It
// registers as a display, reports page state whenever any field changes,
// and surfaces navigation and reload instructions through callbacks.
type Reporter struct {
	url       string
	sessionID string
	source    StateSource
	log       *zap.Logger

	ReconnectDelay time.Duration
	PollInterval   time.Duration

	// OnNavigate, OnGoto and OnReload run on the reporter's event loop;
	// they must not block.
	OnNavigate func(action string)
	OnGoto     func(hash string)
	OnReload   func(preserveHash bool)

	dialer *websocket.Dialer

	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
	started bool
}

func NewReporter(url, sessionID string, source StateSource, log *zap.Logger) *Reporter {
	return &Reporter{
		url:            url,
		sessionID:      sessionID,
		source:         source,
		log:            log,
		ReconnectDelay: defaultReconnectDelay,
		PollInterval:   defaultPollInterval,
		dialer:         websocket.DefaultDialer,
		stop:           make(chan struct{}),
	}
}

// Start runs the connect/report loop until Close is called. The loop owns
// the socket: a reconnect always replaces the previous connection, so at
// most one socket is open at a time.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()
	go r.run()
}

func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	close(r.stop)
}

func (r *Reporter) run() {
	for {
		conn, _, err := r.dialer.Dial(r.url, nil)
		if err != nil {
			r.log.Debug("display connect failed", zap.Error(err))
		} else {
			r.session(conn)
		}

		select {
		case <-r.stop:
			return
		case <-time.After(r.ReconnectDelay):
		}
	}
}

// session drives one connection from registration to close.
func (r *Reporter) session(conn *websocket.Conn) {
	defer conn.Close()

	register := models.Envelope{Type: "register", Role: models.RoleDisplay, SessionID: r.sessionID}
	if err := conn.WriteJSON(register); err != nil {
		return
	}

	last := r.source.State()
	if err := r.report(conn, last); err != nil {
		return
	}

	incoming := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case incoming <- data:
			case <-r.stop:
				return
			}
		}
	}()

	// The poll stops with the session: no reports accumulate while offline.
	poll := time.NewTicker(r.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-readErr:
			return
		case data := <-incoming:
			r.dispatch(data)
		case <-poll.C:
			current := r.source.State()
			if current.equal(last) {
				continue
			}
			if err := r.report(conn, current); err != nil {
				return
			}
			last = current
		}
	}
}

func (r *Reporter) report(conn *websocket.Conn, state PageState) error {
	return conn.WriteJSON(stateReport{Type: "state", SessionID: r.sessionID, PageState: state})
}

func (r *Reporter) dispatch(data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	switch env.Type {
	case "navigate":
		if r.OnNavigate != nil {
			r.OnNavigate(env.Action)
		}
	case "goto":
		if r.OnGoto != nil {
			r.OnGoto(env.Hash)
		}
	case "reload":
		var frame models.ReloadFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return
		}
		if r.OnReload != nil {
			r.OnReload(frame.PreserveHash)
		}
	case "draw", "config", "sync":
		// Rendering concerns; nothing for the reporter to do.
	}
}
