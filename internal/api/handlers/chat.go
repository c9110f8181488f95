package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/telemetry"
	"github.com/go-chi/chi/v5"
)

type ChatService interface {
	Answer(ctx context.Context, question, sessionID string) (string, error)
	History(ctx context.Context, sessionID string) ([]domain.ChatTurn, error)
}

type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	Question string `json:"question"`
}

// ChatResponse is returned unwrapped so clients read "response" directly.
type ChatResponse struct {
	Response string `json:"response"`
}

type HistoryResponse struct {
	SessionID string            `json:"session_id"`
	Turns     []domain.ChatTurn `json:"turns"`
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := h.svc.Answer(r.Context(), req.Question, sessionID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	api.JSON(w, http.StatusOK, ChatResponse{Response: answer})
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	turns, err := h.svc.History(r.Context(), sessionID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if turns == nil {
		turns = []domain.ChatTurn{}
	}

	api.Success(w, http.StatusOK, HistoryResponse{SessionID: sessionID, Turns: turns})
}

// handleError reports upstream and internal failures to Sentry. A missing
// index is an operator state, not a fault.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	if status := api.DomainErrorToHTTP(err); status >= 500 && status != http.StatusServiceUnavailable {
		telemetry.CaptureError(r.Context(), err)
	}
	api.HandleError(w, err)
}
