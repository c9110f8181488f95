package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/telemetry"
	"go.uber.org/zap"
)

// ChatClient generates a reply for a sequence of prompt messages.
type ChatClient interface {
	Complete(ctx context.Context, messages []PromptMessage) (string, error)
}

// QueryEmbedder embeds a single question.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// QueryConfig controls retrieval and prompt assembly.
type QueryConfig struct {
	TopK              int
	HistoryMaxTurns   int
	GenerationTimeout time.Duration
	SystemPrompt      string
}

// DefaultQueryConfig returns top-3 retrieval, unbounded history and a 120s
// generation timeout.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		TopK:              3,
		GenerationTimeout: 120 * time.Second,
		SystemPrompt:      DefaultSystemPrompt,
	}
}

// QueryEngine answers questions from retrieved context and session history.
type QueryEngine struct {
	embedder QueryEmbedder
	index    ChunkSearcher
	chat     ChatClient
	sessions *SessionStore
	cfg      QueryConfig
	log      *zap.Logger
}

// NewQueryEngine creates a QueryEngine.
func NewQueryEngine(embedder QueryEmbedder, index ChunkSearcher, chat ChatClient, sessions *SessionStore, cfg QueryConfig, log *zap.Logger) *QueryEngine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultQueryConfig().TopK
	}
	return &QueryEngine{
		embedder: embedder,
		index:    index,
		chat:     chat,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
	}
}

// Answer runs one retrieval-augmented query for sessionID. Queries on the same
// session are serialized; the session log only changes when generation
// succeeds.
func (e *QueryEngine) Answer(ctx context.Context, question, sessionID string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", domain.NewValidationError("question is required")
	}

	ctx, span := telemetry.StartSpan(ctx, "QueryEngine.Answer", telemetry.SpanAttributes{
		SessionID: sessionID,
		Operation: "answer",
	})
	defer span.End()

	lease, err := e.sessions.Acquire(ctx, sessionID)
	if err != nil {
		span.SetError(err)
		return "", err
	}
	defer lease.Release()

	hits, err := e.retrieve(ctx, question)
	if err != nil {
		span.SetError(err)
		return "", err
	}

	history := WindowHistory(lease.History(), e.cfg.HistoryMaxTurns)
	messages := BuildPrompt(e.cfg.SystemPrompt, hits, history, question)

	response, err := e.generate(ctx, messages)
	if err != nil {
		span.SetError(err)
		return "", err
	}

	lease.Append(question, response)
	e.log.Debug("answered question",
		zap.String("session_id", sessionID),
		zap.Int("context_chunks", len(hits)),
		zap.Int("history_turns", len(history)))
	return response, nil
}

// History returns the session's turns.
func (e *QueryEngine) History(ctx context.Context, sessionID string) ([]domain.ChatTurn, error) {
	return e.sessions.History(ctx, sessionID)
}

func (e *QueryEngine) retrieve(ctx context.Context, question string) ([]domain.ScoredChunk, error) {
	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, asEmbeddingError(err)
	}

	hits, err := e.index.Search(ctx, vector, e.cfg.TopK)
	if err != nil {
		if errors.Is(err, domain.ErrIndexUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	if len(hits) == 0 {
		return nil, domain.ErrIndexUnavailable
	}
	return hits, nil
}

func (e *QueryEngine) generate(ctx context.Context, messages []PromptMessage) (string, error) {
	if e.cfg.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.GenerationTimeout)
		defer cancel()
	}

	response, err := e.chat.Complete(ctx, messages)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return "", domain.NewGenerationError(err)
	}
	return response, nil
}
