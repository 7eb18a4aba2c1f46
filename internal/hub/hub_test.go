package hub

import (
	"encoding/json"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"slidecast/internal/models"
)

type frameCapture struct {
	payloads [][]byte
}

func newFrameCapture() *frameCapture { return &frameCapture{} }

func (c *frameCapture) hook(payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.payloads = append(c.payloads, buf)
}

func (c *frameCapture) decoded(t *testing.T) []map[string]any {
	t.Helper()
	out := make([]map[string]any, 0, len(c.payloads))
	for _, p := range c.payloads {
		var m map[string]any
		if err := json.Unmarshal(p, &m); err != nil {
			t.Fatalf("captured frame is not JSON: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func (c *frameCapture) ofType(t *testing.T, frameType string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range c.decoded(t) {
		if m["type"] == frameType {
			out = append(out, m)
		}
	}
	return out
}

func newTestHub(presenterKey string) *Hub {
	return New(zap.NewNop(), map[string]any{"title": "Demo Deck"}, presenterKey)
}

func hookedClient(trusted bool) (*Client, *frameCapture) {
	c := NewClient(nil, trusted)
	capture := newFrameCapture()
	c.SetSendHook(capture.hook)
	return c, capture
}

func register(h *Hub, c *Client, role models.Role, key string) {
	msg := map[string]any{"type": "register", "role": string(role)}
	if key != "" {
		msg["key"] = key
	}
	payload, _ := json.Marshal(msg)
	h.HandleMessage(c, payload)
}

func TestRegisterExactlyOneRoleSet(t *testing.T) {
	h := newTestHub("")
	c, _ := hookedClient(true)

	register(h, c, models.RoleDisplay, "")
	if d, p, q := h.Counts(); d != 1 || p != 0 || q != 0 {
		t.Fatalf("after display register counts = %d/%d/%d", d, p, q)
	}

	register(h, c, models.RolePresenter, "")
	if d, p, q := h.Counts(); d != 0 || p != 1 || q != 0 {
		t.Fatalf("re-register must move the connection, counts = %d/%d/%d", d, p, q)
	}

	register(h, c, models.RoleQuestions, "")
	if d, p, q := h.Counts(); d != 0 || p != 0 || q != 1 {
		t.Fatalf("re-register must move the connection, counts = %d/%d/%d", d, p, q)
	}
}

func TestRegisterUnknownRoleVacatesPrevious(t *testing.T) {
	h := newTestHub("")
	c, _ := hookedClient(true)

	register(h, c, models.RoleDisplay, "")
	register(h, c, models.Role("spectator"), "")
	if d, p, q := h.Counts(); d != 0 || p != 0 || q != 0 {
		t.Fatalf("unknown role should leave no membership, counts = %d/%d/%d", d, p, q)
	}
}

func TestRegisterPushesConfig(t *testing.T) {
	h := newTestHub("")
	c, capture := hookedClient(true)

	register(h, c, models.RoleDisplay, "")

	configs := capture.ofType(t, "config")
	if len(configs) != 1 {
		t.Fatalf("expected one config push, got %d", len(configs))
	}
	cfg, ok := configs[0]["config"].(map[string]any)
	if !ok {
		t.Fatalf("config frame missing config object: %#v", configs[0])
	}
	if cfg["title"] != "Demo Deck" {
		t.Fatalf("unexpected config payload: %#v", cfg)
	}
	if cfg["sessionId"] != h.SessionID() {
		t.Fatalf("config must carry the hub session id")
	}
}

func TestUnauthorizedPresenterClosedWithoutConfig(t *testing.T) {
	h := newTestHub("042981")
	c, capture := hookedClient(false)

	register(h, c, models.RolePresenter, "000000")

	if !c.Closed() {
		t.Fatalf("wrong key from untrusted origin must close the connection")
	}
	if d, p, q := h.Counts(); d != 0 || p != 0 || q != 0 {
		t.Fatalf("no partial registration may occur, counts = %d/%d/%d", d, p, q)
	}
	if got := capture.decoded(t); len(got) != 0 {
		t.Fatalf("rejected presenter must receive nothing, got %#v", got)
	}
}

func TestTrustedPresenterBypassesKey(t *testing.T) {
	h := newTestHub("042981")
	c, capture := hookedClient(true)

	register(h, c, models.RolePresenter, "")

	if c.Closed() {
		t.Fatalf("trusted origin must bypass the key check")
	}
	if len(capture.ofType(t, "config")) != 1 {
		t.Fatalf("trusted presenter should receive config")
	}
}

func TestUntrustedPresenterWithCorrectKey(t *testing.T) {
	h := newTestHub("042981")
	c, _ := hookedClient(false)

	register(h, c, models.RolePresenter, "042981")

	if c.Closed() {
		t.Fatalf("correct key must be accepted")
	}
	if _, p, _ := h.Counts(); p != 1 {
		t.Fatalf("presenter should be registered")
	}
}

func TestStateFanOutToPresenters(t *testing.T) {
	h := newTestHub("")
	display, _ := hookedClient(true)
	presenter, pCap := hookedClient(true)

	register(h, display, models.RoleDisplay, "")
	register(h, presenter, models.RolePresenter, "")

	h.HandleMessage(display, []byte(`{"type":"state","slideId":"3","hash":"#3"}`))

	states := pCap.ofType(t, "state")
	if len(states) != 1 {
		t.Fatalf("expected one state frame at presenter, got %d", len(states))
	}
	got := states[0]
	if got["slideId"] != "3" || got["hash"] != "#3" {
		t.Fatalf("state not mirrored verbatim: %#v", got)
	}
	if got["displays"] != float64(1) {
		t.Fatalf("state must carry the live display count, got %#v", got["displays"])
	}
}

func TestStateCachedForLateJoiningPresenter(t *testing.T) {
	h := newTestHub("")
	display, _ := hookedClient(true)
	register(h, display, models.RoleDisplay, "")
	h.HandleMessage(display, []byte(`{"type":"state","slideId":"7","hash":"#7","notes":"hi"}`))

	late, lateCap := hookedClient(true)
	register(h, late, models.RolePresenter, "")

	states := lateCap.ofType(t, "state")
	if len(states) != 1 {
		t.Fatalf("late presenter should get the cached state, got %d frames", len(states))
	}
	if states[0]["slideId"] != "7" || states[0]["notes"] != "hi" {
		t.Fatalf("cached state mismatch: %#v", states[0])
	}
}

func TestStateFromNonDisplayDropped(t *testing.T) {
	h := newTestHub("")
	presenter, _ := hookedClient(true)
	watcherP, wCap := hookedClient(true)

	register(h, presenter, models.RolePresenter, "")
	register(h, watcherP, models.RolePresenter, "")

	h.HandleMessage(presenter, []byte(`{"type":"state","slideId":"9"}`))

	if got := wCap.ofType(t, "state"); len(got) != 0 {
		t.Fatalf("state from a presenter must be ignored, got %#v", got)
	}
}

func TestStateSessionMismatchForcesHardReload(t *testing.T) {
	h := newTestHub("")
	display, dCap := hookedClient(true)
	presenter, pCap := hookedClient(true)

	register(h, display, models.RoleDisplay, "")
	register(h, presenter, models.RolePresenter, "")

	h.HandleMessage(display, []byte(`{"type":"state","slideId":"2","sessionId":"`+h.SessionID()+`"}`))
	h.HandleMessage(display, []byte(`{"type":"state","slideId":"5","sessionId":"stale-instance"}`))

	reloads := dCap.ofType(t, "reload")
	if len(reloads) != 1 {
		t.Fatalf("expected one reload at display, got %d", len(reloads))
	}
	if reloads[0]["preserveHash"] != false {
		t.Fatalf("session drift must hard-reload, got %#v", reloads[0])
	}

	// currentState is unchanged: a freshly registered presenter still sees
	// the pre-mismatch slide.
	late, lateCap := hookedClient(true)
	register(h, late, models.RolePresenter, "")
	states := lateCap.ofType(t, "state")
	if len(states) != 1 || states[0]["slideId"] != "2" {
		t.Fatalf("stale report must not touch currentState: %#v", states)
	}

	// Presenters never see the stale report either.
	for _, s := range pCap.ofType(t, "state") {
		if s["slideId"] == "5" {
			t.Fatalf("stale state leaked to presenter: %#v", s)
		}
	}
}

func TestCommandNavigate(t *testing.T) {
	h := newTestHub("")
	display, dCap := hookedClient(true)
	presenter, _ := hookedClient(true)

	register(h, display, models.RoleDisplay, "")
	register(h, presenter, models.RolePresenter, "")

	h.HandleMessage(presenter, []byte(`{"type":"command","action":"next"}`))

	navs := dCap.ofType(t, "navigate")
	if len(navs) != 1 || navs[0]["action"] != "next" {
		t.Fatalf("expected navigate next at display, got %#v", navs)
	}
}

func TestCommandGoto(t *testing.T) {
	h := newTestHub("")
	display, dCap := hookedClient(true)
	presenter, _ := hookedClient(true)

	register(h, display, models.RoleDisplay, "")
	register(h, presenter, models.RolePresenter, "")

	h.HandleMessage(presenter, []byte(`{"type":"command","action":"goto","hash":"#12"}`))

	gotos := dCap.ofType(t, "goto")
	if len(gotos) != 1 || gotos[0]["hash"] != "#12" {
		t.Fatalf("expected goto #12 at display, got %#v", gotos)
	}
}

func TestCommandUnknownActionIgnored(t *testing.T) {
	h := newTestHub("")
	display, dCap := hookedClient(true)
	presenter, _ := hookedClient(true)

	register(h, display, models.RoleDisplay, "")
	register(h, presenter, models.RolePresenter, "")
	before := len(dCap.payloads)

	h.HandleMessage(presenter, []byte(`{"type":"command","action":"teleport"}`))

	if len(dCap.payloads) != before {
		t.Fatalf("unknown action must be a no-op")
	}
}

func TestCommandFromDisplayDropped(t *testing.T) {
	h := newTestHub("")
	display, dCap := hookedClient(true)
	register(h, display, models.RoleDisplay, "")
	before := len(dCap.payloads)

	h.HandleMessage(display, []byte(`{"type":"command","action":"next"}`))

	if len(dCap.payloads) != before {
		t.Fatalf("command from a display must be ignored")
	}
}

func TestDrawRelayedVerbatim(t *testing.T) {
	h := newTestHub("")
	display, dCap := hookedClient(true)
	presenter, _ := hookedClient(true)

	register(h, display, models.RoleDisplay, "")
	register(h, presenter, models.RolePresenter, "")

	raw := []byte(`{"type":"draw","action":"move","x":0.25,"y":0.75,"color":"#ff0044","size":3,"customField":"kept"}`)
	h.HandleMessage(presenter, raw)

	var relayed []byte
	for _, p := range dCap.payloads {
		var m map[string]any
		if json.Unmarshal(p, &m) == nil && m["type"] == "draw" {
			relayed = p
		}
	}
	if relayed == nil {
		t.Fatalf("draw frame not relayed")
	}
	if string(relayed) != string(raw) {
		t.Fatalf("draw must pass through byte for byte:\n got %s\nwant %s", relayed, raw)
	}
}

func TestReloadFromPresenter(t *testing.T) {
	h := newTestHub("")
	display, dCap := hookedClient(true)
	presenter, _ := hookedClient(true)

	register(h, display, models.RoleDisplay, "")
	register(h, presenter, models.RolePresenter, "")

	h.HandleMessage(presenter, []byte(`{"type":"reload"}`))

	reloads := dCap.ofType(t, "reload")
	if len(reloads) != 1 || reloads[0]["preserveHash"] != false {
		t.Fatalf("presenter reload must hard-reload displays, got %#v", reloads)
	}
}

func TestBroadcastReloadPreservesHash(t *testing.T) {
	h := newTestHub("")
	display, dCap := hookedClient(true)
	register(h, display, models.RoleDisplay, "")

	h.BroadcastReload(true)

	reloads := dCap.ofType(t, "reload")
	if len(reloads) != 1 || reloads[0]["preserveHash"] != true {
		t.Fatalf("watch reload must preserve the hash, got %#v", reloads)
	}
}

func TestCloseRemovesAndSyncs(t *testing.T) {
	h := newTestHub("")
	d1, _ := hookedClient(true)
	d2, cap2 := hookedClient(true)

	register(h, d1, models.RoleDisplay, "")
	register(h, d2, models.RoleDisplay, "")

	h.HandleClose(d1)

	if d, _, _ := h.Counts(); d != 1 {
		t.Fatalf("close must shrink the role set by one, displays = %d", d)
	}
	syncs := cap2.ofType(t, "sync")
	last := syncs[len(syncs)-1]
	if last["displays"] != float64(1) || last["presenters"] != float64(0) {
		t.Fatalf("close must broadcast fresh counts, got %#v", last)
	}
}

func TestSyncBroadcastOnEveryRegistration(t *testing.T) {
	h := newTestHub("")
	display, dCap := hookedClient(true)
	register(h, display, models.RoleDisplay, "")

	presenter, _ := hookedClient(true)
	register(h, presenter, models.RolePresenter, "")

	syncs := dCap.ofType(t, "sync")
	if len(syncs) != 2 {
		t.Fatalf("expected a sync per registration, got %d", len(syncs))
	}
	last := syncs[len(syncs)-1]
	if last["displays"] != float64(1) || last["presenters"] != float64(1) {
		t.Fatalf("unexpected sync counts: %#v", last)
	}
}

func TestUpdateConfigRoundTrip(t *testing.T) {
	h := newTestHub("")
	next := map[string]any{"title": "Replaced", "timer": "auto", "sessionId": "attacker-controlled"}
	h.UpdateConfig(next)

	p, capture := hookedClient(true)
	register(h, p, models.RolePresenter, "")

	configs := capture.ofType(t, "config")
	if len(configs) != 1 {
		t.Fatalf("expected config push, got %d", len(configs))
	}
	cfg := configs[0]["config"].(map[string]any)
	if cfg["title"] != "Replaced" || cfg["timer"] != "auto" {
		t.Fatalf("config not replaced wholesale: %#v", cfg)
	}
	if cfg["sessionId"] != h.SessionID() {
		t.Fatalf("session id is hub-controlled, got %#v", cfg["sessionId"])
	}
}

func TestUpdateConfigBroadcastsToDisplaysAndPresenters(t *testing.T) {
	h := newTestHub("")
	display, dCap := hookedClient(true)
	presenter, pCap := hookedClient(true)
	listener, qCap := hookedClient(true)

	register(h, display, models.RoleDisplay, "")
	register(h, presenter, models.RolePresenter, "")
	register(h, listener, models.RoleQuestions, "")

	dBefore := len(dCap.ofType(t, "config"))
	pBefore := len(pCap.ofType(t, "config"))
	qBefore := len(qCap.ofType(t, "config"))

	h.UpdateConfig(map[string]any{"title": "v2"})

	if len(dCap.ofType(t, "config")) != dBefore+1 || len(pCap.ofType(t, "config")) != pBefore+1 {
		t.Fatalf("config must reach displays and presenters")
	}
	if len(qCap.ofType(t, "config")) != qBefore {
		t.Fatalf("config update is not for question listeners")
	}
}

func TestBroadcastQuestionsAndLateJoin(t *testing.T) {
	h := newTestHub("")
	presenter, pCap := hookedClient(true)
	display, dCap := hookedClient(true)
	register(h, presenter, models.RolePresenter, "")
	register(h, display, models.RoleDisplay, "")

	h.BroadcastQuestions([]models.Question{{ID: "q1", Text: "why?", Votes: 3}})

	frames := pCap.ofType(t, "questions")
	if len(frames) != 1 {
		t.Fatalf("presenter should receive questions, got %d", len(frames))
	}
	if len(dCap.ofType(t, "questions")) != 0 {
		t.Fatalf("displays do not receive questions")
	}

	late, lateCap := hookedClient(true)
	register(h, late, models.RoleQuestions, "")
	if len(lateCap.ofType(t, "questions")) != 1 {
		t.Fatalf("late-joining listener should get the cached snapshot")
	}
}

func TestMalformedJSONDroppedSilently(t *testing.T) {
	h := newTestHub("")
	display, dCap := hookedClient(true)
	register(h, display, models.RoleDisplay, "")
	before := len(dCap.payloads)

	h.HandleMessage(display, []byte(`{"type":"state",`))
	h.HandleMessage(display, []byte(`not json at all`))

	if len(dCap.payloads) != before {
		t.Fatalf("malformed payloads must be dropped with no response")
	}
	if d, _, _ := h.Counts(); d != 1 {
		t.Fatalf("malformed payloads must not disturb membership")
	}
}

func TestUnknownMessageTypeIgnored(t *testing.T) {
	h := newTestHub("")
	display, dCap := hookedClient(true)
	register(h, display, models.RoleDisplay, "")
	before := len(dCap.payloads)

	h.HandleMessage(display, []byte(`{"type":"telemetry","payload":1}`))

	if len(dCap.payloads) != before {
		t.Fatalf("unknown type must be a silent no-op")
	}
}

func TestLastWriteWinsAcrossDisplays(t *testing.T) {
	h := newTestHub("")
	d1, _ := hookedClient(true)
	d2, _ := hookedClient(true)
	register(h, d1, models.RoleDisplay, "")
	register(h, d2, models.RoleDisplay, "")

	h.HandleMessage(d1, []byte(`{"type":"state","slideId":"1"}`))
	h.HandleMessage(d2, []byte(`{"type":"state","slideId":"2"}`))

	late, lateCap := hookedClient(true)
	register(h, late, models.RolePresenter, "")
	states := lateCap.ofType(t, "state")
	if len(states) != 1 || states[0]["slideId"] != "2" {
		t.Fatalf("second report must stomp the first, got %#v", states)
	}
}

func TestManyRegistrationsStayDisjoint(t *testing.T) {
	h := newTestHub("")
	clients := make([]*Client, 0, 8)
	for i := 0; i < 8; i++ {
		c, _ := hookedClient(true)
		clients = append(clients, c)
	}
	roles := []models.Role{models.RoleDisplay, models.RolePresenter, models.RoleQuestions}
	for round := 0; round < 3; round++ {
		for i, c := range clients {
			register(h, c, roles[(i+round)%len(roles)], "")
		}
		d, p, q := h.Counts()
		if d+p+q != len(clients) {
			t.Fatalf("round %d: membership total %d, want %d", round, d+p+q, len(clients))
		}
	}
	for _, c := range clients {
		h.HandleClose(c)
	}
	if d, p, q := h.Counts(); d+p+q != 0 {
		t.Fatalf("all closed, counts = %d/%d/%d", d, p, q)
	}
}

func TestConcurrentHandlersDoNotRace(t *testing.T) {
	h := newTestHub("")
	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			c, _ := hookedClient(true)
			for i := 0; i < 50; i++ {
				register(h, c, models.RoleDisplay, "")
				h.HandleMessage(c, []byte(fmt.Sprintf(`{"type":"state","slideId":"%d-%d"}`, g, i)))
				h.HandleClose(c)
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}
	if d, p, q := h.Counts(); d != 0 || p != 0 || q != 0 {
		t.Fatalf("expected empty hub, counts = %d/%d/%d", d, p, q)
	}
}
