package hub

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slidecast/internal/metrics"
	"slidecast/internal/models"
)

// Hub routes frames between display, presenter, and question-listener
// connections. All mutable state lives behind one mutex so every handler
// runs to completion before the next one observes anything; finer-grained
// locking would change the interleavings clients can see.
type Hub struct {
	log          *zap.Logger
	sessionID    string
	presenterKey string

	mu         sync.Mutex
	displays   map[*Client]struct{}
	presenters map[*Client]struct{}
	listeners  map[*Client]struct{}
	state      map[string]any
	questions  []models.Question
	config     map[string]any
}

// New builds a hub around the deck config. The session id is generated once
// per process lifetime and injected into every config payload; config
// updates never rotate it.
func New(log *zap.Logger, config map[string]any, presenterKey string) *Hub {
	h := &Hub{
		log:          log,
		sessionID:    uuid.NewString(),
		presenterKey: presenterKey,
		displays:     make(map[*Client]struct{}),
		presenters:   make(map[*Client]struct{}),
		listeners:    make(map[*Client]struct{}),
	}
	h.config = h.mergeSessionID(config)
	return h
}

func (h *Hub) SessionID() string { return h.sessionID }

// Config returns a copy of the live config blob, session id included.
func (h *Hub) Config() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return copyMap(h.config)
}

// Counts reports the current role-set sizes.
func (h *Hub) Counts() (displays, presenters, questionListeners int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.displays), len(h.presenters), len(h.listeners)
}

// HandleMessage dispatches one inbound frame. Malformed payloads, frames
// from a role not permitted to send them, and unknown types are dropped
// silently: the wire protocol has no error channel, so there is nothing to
// talk back on.
func (h *Hub) HandleMessage(c *Client, data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch env.Type {
	case "register":
		h.register(c, env)
	case "state":
		h.reportState(c, env, data)
	case "command":
		h.dispatchCommand(c, env)
	case "draw":
		h.relayDraw(c, data)
	case "reload":
		h.requestReload(c)
	}
}

// HandleClose removes a closed connection from its role set and re-syncs
// counts.
func (h *Hub) HandleClose(c *Client) {
	c.MarkClosed()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
	h.syncLocked()
}

// UpdateConfig replaces the config blob wholesale and pushes it to every
// display and presenter. The hub's own session id always wins over whatever
// the payload carried.
func (h *Hub) UpdateConfig(config map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.config = h.mergeSessionID(config)
	frame := models.ConfigFrame{Type: "config", Config: copyMap(h.config)}
	h.broadcastLocked(frame, h.displays, h.presenters)
	metrics.CountBroadcast("config")
}

// BroadcastQuestions caches the latest snapshot for late joiners and fans it
// out to presenters and question listeners. The hub never mutates the list.
func (h *Hub) BroadcastQuestions(questions []models.Question) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.questions = questions
	frame := models.QuestionsFrame{Type: "questions", Questions: questions}
	h.broadcastLocked(frame, h.presenters, h.listeners)
	metrics.CountBroadcast("questions")
}

// BroadcastReload asks every display to reload; preserveHash keeps the
// current slide across the reload (file-watch refresh) while a hard reload
// drops it (session drift recovery).
func (h *Hub) BroadcastReload(preserveHash bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloadLocked(preserveHash)
}

func (h *Hub) register(c *Client, env models.Envelope) {
	h.removeLocked(c)

	switch env.Role {
	case models.RoleDisplay:
		c.role = models.RoleDisplay
		h.displays[c] = struct{}{}
		h.sendConfigLocked(c)

	case models.RolePresenter:
		if !c.Trusted() && h.presenterKey != "" && env.Key != h.presenterKey {
			h.log.Warn("presenter registration rejected", zap.String("reason", "bad key"))
			c.CloseUnauthorized()
			break
		}
		c.role = models.RolePresenter
		h.presenters[c] = struct{}{}
		h.sendConfigLocked(c)
		if h.state != nil {
			if payload, err := json.Marshal(h.stateWithDisplaysLocked()); err == nil {
				c.SendRaw(payload)
			}
		}
		if h.questions != nil {
			c.Send(models.QuestionsFrame{Type: "questions", Questions: h.questions})
		}

	case models.RoleQuestions:
		c.role = models.RoleQuestions
		h.listeners[c] = struct{}{}
		h.sendConfigLocked(c)
		if h.questions != nil {
			c.Send(models.QuestionsFrame{Type: "questions", Questions: h.questions})
		}
	}

	// Every registration attempt syncs counts, including rejected ones that
	// still vacated a previous role.
	h.syncLocked()
}

func (h *Hub) reportState(c *Client, env models.Envelope, data []byte) {
	if c.role != models.RoleDisplay {
		return
	}

	if env.SessionID != "" && env.SessionID != h.sessionID {
		// The display is talking about a different presentation instance;
		// force it back to the live one instead of accepting stale state.
		h.log.Info("session mismatch from display", zap.String("reported", env.SessionID))
		h.reloadLocked(false)
		return
	}

	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		return
	}
	h.state = state

	if payload, err := json.Marshal(h.stateWithDisplaysLocked()); err == nil {
		h.broadcastRawLocked(payload, h.presenters)
		metrics.CountBroadcast("state")
	}
}

func (h *Hub) dispatchCommand(c *Client, env models.Envelope) {
	if c.role != models.RolePresenter {
		return
	}

	if env.Action == "goto" && env.Hash != "" {
		h.broadcastLocked(models.GotoFrame{Type: "goto", Hash: env.Hash}, h.displays)
		metrics.CountBroadcast("goto")
		return
	}

	switch env.Action {
	case "next", "prev", "first", "last":
		h.broadcastLocked(models.NavigateFrame{Type: "navigate", Action: env.Action}, h.displays)
		metrics.CountBroadcast("navigate")
	}
	// Unknown actions are a forward-compatible no-op.
}

func (h *Hub) relayDraw(c *Client, data []byte) {
	if c.role != models.RolePresenter {
		return
	}
	// Draw semantics belong to the clients; the hub passes the payload
	// through byte for byte.
	h.broadcastRawLocked(data, h.displays)
	metrics.CountBroadcast("draw")
}

func (h *Hub) requestReload(c *Client) {
	if c.role != models.RolePresenter {
		return
	}
	h.reloadLocked(false)
}

func (h *Hub) reloadLocked(preserveHash bool) {
	h.broadcastLocked(models.ReloadFrame{Type: "reload", PreserveHash: preserveHash}, h.displays)
	metrics.CountBroadcast("reload")
}

func (h *Hub) removeLocked(c *Client) {
	delete(h.displays, c)
	delete(h.presenters, c)
	delete(h.listeners, c)
	c.role = models.RoleNone
}

func (h *Hub) sendConfigLocked(c *Client) {
	c.Send(models.ConfigFrame{Type: "config", Config: copyMap(h.config)})
}

func (h *Hub) stateWithDisplaysLocked() map[string]any {
	out := copyMap(h.state)
	out["displays"] = len(h.displays)
	return out
}

func (h *Hub) syncLocked() {
	frame := models.SyncFrame{
		Type:       "sync",
		Displays:   len(h.displays),
		Presenters: len(h.presenters),
	}
	h.broadcastLocked(frame, h.displays, h.presenters)
	metrics.CountBroadcast("sync")
	metrics.SetConnectedRoles(len(h.displays), len(h.presenters), len(h.listeners))
}

func (h *Hub) broadcastLocked(frame any, targets ...map[*Client]struct{}) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.broadcastRawLocked(payload, targets...)
}

func (h *Hub) broadcastRawLocked(payload []byte, targets ...map[*Client]struct{}) {
	for _, set := range targets {
		for c := range set {
			c.SendRaw(payload)
		}
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (h *Hub) mergeSessionID(config map[string]any) map[string]any {
	merged := copyMap(config)
	merged["sessionId"] = h.sessionID
	return merged
}
