// Package api holds the HTTP and websocket handlers in front of the hub,
// the deck source and the question store.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"slidecast/internal/deck"
	"slidecast/internal/hub"
	"slidecast/internal/models"
	"slidecast/internal/questions"
	"slidecast/internal/utils"
	"slidecast/internal/web"
)

const voterCookie = "voterToken"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The deck may be viewed through tunnels and reverse proxies; access
	// control happens at registration, not at the upgrade.
	CheckOrigin: func(*http.Request) bool { return true },
}

type Handlers struct {
	log          *zap.Logger
	hub          *hub.Hub
	deck         deck.Source
	store        *questions.Store // nil when the deck is remote
	presenterKey string
}

func NewHandlers(log *zap.Logger, h *hub.Hub, d deck.Source, store *questions.Store, presenterKey string) *Handlers {
	return &Handlers{log: log, hub: h, deck: d, store: store, presenterKey: presenterKey}
}

// WebSocket upgrades the connection and pumps inbound frames into the hub.
// The trusted flag is derived once, here, and never re-evaluated.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	trusted := utils.IsLocalRequest(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := hub.NewClient(conn, trusted)
	h.log.Debug("websocket connected",
		zap.String("addr", utils.RequestAddress(r)),
		zap.Bool("trusted", trusted))

	defer func() {
		h.hub.HandleClose(client)
		conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.hub.HandleMessage(client, data)
	}
}

// authorized implements the shared-key check used by the presenter console
// and the mutating endpoints: local callers always pass; remote callers need
// the configured key; with no key configured remote mutation is refused.
func (h *Handlers) authorized(w http.ResponseWriter, r *http.Request) bool {
	if utils.IsLocalRequest(r) {
		return true
	}
	if h.presenterKey == "" {
		utils.WriteError(w, http.StatusForbidden, "not available remotely")
		return false
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		key = r.Header.Get("X-Presenter-Key")
	}
	if key != h.presenterKey {
		utils.WriteError(w, http.StatusUnauthorized, "invalid presenter key")
		return false
	}
	return true
}

func (h *Handlers) PresenterPage(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(web.PresenterHTML())
}

// QuestionsPage serves the audience page and hands out the anonymous voter
// token cookie used for vote dedup.
func (h *Handlers) QuestionsPage(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(voterCookie); err != nil {
		http.SetCookie(w, &http.Cookie{
			Name:     voterCookie,
			Value:    uuid.NewString(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(web.QuestionsHTML())
}

func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.hub.Config())
}

// SaveConfig replaces the presenter config wholesale. The caller-supplied
// sessionId is discarded; the hub re-injects its own.
func (h *Handlers) SaveConfig(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	if !h.deck.Local() {
		utils.WriteError(w, http.StatusBadRequest, "remote decks are read-only")
		return
	}

	var config map[string]any
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid config payload")
		return
	}
	delete(config, "sessionId")

	if err := h.deck.SaveConfig(config); err != nil {
		h.log.Error("failed to save config", zap.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to save config")
		return
	}
	h.hub.UpdateConfig(config)

	utils.WriteJSON(w, http.StatusOK, models.ConfigSaveResponse{Saved: true, Config: h.hub.Config()})
}

func (h *Handlers) Notes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.deck.Notes(r.URL.Query().Get("hash"))
	if err != nil {
		h.log.Error("failed to read notes", zap.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to read notes")
		return
	}
	var body models.NotesResponse
	if notes != "" {
		body.Notes = &notes
	}
	utils.WriteJSON(w, http.StatusOK, body)
}

// Deck is the catch-all: everything outside /_/ is the deck itself.
func (h *Handlers) Deck(w http.ResponseWriter, r *http.Request) {
	h.deck.Serve(w, r)
}

func (h *Handlers) questionsAvailable(w http.ResponseWriter) bool {
	if h.store == nil {
		utils.WriteError(w, http.StatusNotImplemented, "questions require a local deck")
		return false
	}
	return true
}

// rebroadcastQuestions pushes the fresh snapshot to presenters and
// question listeners after any mutation.
func (h *Handlers) rebroadcastQuestions() {
	list, err := h.store.List()
	if err != nil {
		h.log.Error("failed to list questions", zap.Error(err))
		return
	}
	h.hub.BroadcastQuestions(list)
}

func (h *Handlers) ListQuestions(w http.ResponseWriter, r *http.Request) {
	if !h.questionsAvailable(w) {
		return
	}
	list, err := h.store.List()
	if err != nil {
		h.log.Error("failed to list questions", zap.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to list questions")
		return
	}
	utils.WriteJSON(w, http.StatusOK, models.QuestionListResponse{Questions: list})
}

func (h *Handlers) SubmitQuestion(w http.ResponseWriter, r *http.Request) {
	if !h.questionsAvailable(w) {
		return
	}
	var req models.QuestionSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	q, err := h.store.Add(req.Text)
	if errors.Is(err, questions.ErrEmptyText) || errors.Is(err, questions.ErrTooLong) {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.log.Error("failed to add question", zap.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to add question")
		return
	}

	h.rebroadcastQuestions()
	utils.WriteJSON(w, http.StatusCreated, models.QuestionResponse{OK: true, Question: q})
}

func (h *Handlers) VoteQuestion(w http.ResponseWriter, r *http.Request) {
	if !h.questionsAvailable(w) {
		return
	}
	var req models.QuestionRef
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		utils.WriteError(w, http.StatusBadRequest, "question id is required")
		return
	}

	token := h.voterToken(w, r)
	q, counted, err := h.store.Vote(req.ID, token)
	if errors.Is(err, questions.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, "question not found")
		return
	}
	if err != nil {
		h.log.Error("failed to record vote", zap.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to record vote")
		return
	}

	if counted {
		h.rebroadcastQuestions()
	}
	utils.WriteJSON(w, http.StatusOK, models.QuestionResponse{OK: true, Voted: &counted, Question: q})
}

func (h *Handlers) AnswerQuestion(w http.ResponseWriter, r *http.Request) {
	if !h.questionsAvailable(w) {
		return
	}
	if !h.authorized(w, r) {
		return
	}
	var req models.QuestionAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		utils.WriteError(w, http.StatusBadRequest, "question id is required")
		return
	}

	q, err := h.store.SetAnswered(req.ID, req.Answered)
	if errors.Is(err, questions.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, "question not found")
		return
	}
	if err != nil {
		h.log.Error("failed to update question", zap.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to update question")
		return
	}

	h.rebroadcastQuestions()
	utils.WriteJSON(w, http.StatusOK, models.QuestionResponse{OK: true, Question: q})
}

func (h *Handlers) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if !h.questionsAvailable(w) {
		return
	}
	if !h.authorized(w, r) {
		return
	}
	var req models.QuestionRef
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		utils.WriteError(w, http.StatusBadRequest, "question id is required")
		return
	}

	err := h.store.Delete(req.ID)
	if errors.Is(err, questions.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, "question not found")
		return
	}
	if err != nil {
		h.log.Error("failed to delete question", zap.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to delete question")
		return
	}

	h.rebroadcastQuestions()
	utils.WriteJSON(w, http.StatusOK, models.QuestionResponse{OK: true})
}

// voterToken returns the caller's anonymous vote-dedup token, minting one if
// the audience page cookie is absent.
func (h *Handlers) voterToken(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(voterCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	token := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     voterCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return token
}
