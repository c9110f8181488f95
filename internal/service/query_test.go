package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type queryFixture struct {
	embedder *MockEmbeddingClient
	index    *MockVectorIndex
	chat     *MockChatClient
	sessions *SessionStore
	engine   *QueryEngine
}

func newQueryFixture(cfg QueryConfig) *queryFixture {
	f := &queryFixture{
		embedder: new(MockEmbeddingClient),
		index:    new(MockVectorIndex),
		chat:     new(MockChatClient),
		sessions: NewSessionStore(SessionStoreConfig{}),
	}
	f.engine = NewQueryEngine(f.embedder, f.index, f.chat, f.sessions, cfg, zap.NewNop())
	return f
}

func lastMessage(messages []PromptMessage) PromptMessage {
	return messages[len(messages)-1]
}

func TestQueryEngine_Answer_AppendsTurnPairsInOrder(t *testing.T) {
	f := newQueryFixture(DefaultQueryConfig())
	ctx := context.Background()
	vec := []float32{0.1, 0.2}

	f.embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return(vec, nil)
	f.index.On("Search", mock.Anything, vec, 3).Return(scored("p = mv"), nil)
	f.chat.On("Complete", mock.Anything, mock.MatchedBy(func(m []PromptMessage) bool {
		return lastMessage(m).Content == "q1" && len(m) == 2
	})).Return("r1", nil).Once()
	f.chat.On("Complete", mock.Anything, mock.MatchedBy(func(m []PromptMessage) bool {
		return lastMessage(m).Content == "q2" && len(m) == 4 && m[1].Content == "q1" && m[2].Content == "r1"
	})).Return("r2", nil).Once()

	r1, err := f.engine.Answer(ctx, "q1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "r1", r1)
	r2, err := f.engine.Answer(ctx, "q2", "s1")
	require.NoError(t, err)
	assert.Equal(t, "r2", r2)

	history, err := f.engine.History(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ChatTurn{
		domain.HumanTurn("q1"), domain.AssistantTurn("r1"),
		domain.HumanTurn("q2"), domain.AssistantTurn("r2"),
	}, history)
	f.chat.AssertExpectations(t)
}

func TestQueryEngine_Answer_GenerationFailureLeavesHistoryUnchanged(t *testing.T) {
	f := newQueryFixture(DefaultQueryConfig())
	ctx := context.Background()
	require.NoError(t, f.sessions.Append(ctx, "s1", "earlier", "reply"))

	f.embedder.On("EmbedQuery", mock.Anything, "What is momentum?").Return([]float32{1}, nil)
	f.index.On("Search", mock.Anything, mock.Anything, 3).Return(scored("ctx"), nil)
	f.chat.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("model crashed"))

	_, err := f.engine.Answer(ctx, "What is momentum?", "s1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrGeneration))
	history, _ := f.engine.History(ctx, "s1")
	assert.Equal(t, []domain.ChatTurn{domain.HumanTurn("earlier"), domain.AssistantTurn("reply")}, history)
}

func TestQueryEngine_Answer_EmptyIndexIsUnavailable(t *testing.T) {
	f := newQueryFixture(DefaultQueryConfig())
	ctx := context.Background()

	f.embedder.On("EmbedQuery", mock.Anything, "What is momentum?").Return([]float32{1}, nil)
	f.index.On("Search", mock.Anything, mock.Anything, 3).Return([]domain.ScoredChunk{}, nil)

	_, err := f.engine.Answer(ctx, "What is momentum?", "s1")

	assert.True(t, errors.Is(err, domain.ErrIndexUnavailable))
	history, _ := f.engine.History(ctx, "s1")
	assert.Empty(t, history)
	f.chat.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestQueryEngine_Answer_MissingIndexIsUnavailable(t *testing.T) {
	f := newQueryFixture(DefaultQueryConfig())

	f.embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	f.index.On("Search", mock.Anything, mock.Anything, 3).Return(nil, domain.ErrIndexUnavailable)

	_, err := f.engine.Answer(context.Background(), "q", "s1")

	assert.True(t, errors.Is(err, domain.ErrIndexUnavailable))
}

func TestQueryEngine_Answer_EmbeddingFailure(t *testing.T) {
	f := newQueryFixture(DefaultQueryConfig())

	f.embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return(nil, errors.New("ollama down"))

	_, err := f.engine.Answer(context.Background(), "q", "s1")

	assert.True(t, errors.Is(err, domain.ErrEmbedding))
	f.index.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryEngine_Answer_RejectsBlankQuestion(t *testing.T) {
	f := newQueryFixture(DefaultQueryConfig())

	_, err := f.engine.Answer(context.Background(), "   ", "s1")

	assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
	f.embedder.AssertNotCalled(t, "EmbedQuery", mock.Anything, mock.Anything)
}

func TestQueryEngine_Answer_EmptyOutputIsPassedThrough(t *testing.T) {
	f := newQueryFixture(DefaultQueryConfig())
	ctx := context.Background()

	f.embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	f.index.On("Search", mock.Anything, mock.Anything, 3).Return(scored("ctx"), nil)
	f.chat.On("Complete", mock.Anything, mock.Anything).Return("", nil)

	resp, err := f.engine.Answer(ctx, "q", "s1")

	require.NoError(t, err)
	assert.Equal(t, "", resp)
	history, _ := f.engine.History(ctx, "s1")
	assert.Equal(t, []domain.ChatTurn{domain.HumanTurn("q"), domain.AssistantTurn("")}, history)
}

func TestQueryEngine_Answer_GenerationTimeout(t *testing.T) {
	cfg := DefaultQueryConfig()
	cfg.GenerationTimeout = 10 * time.Millisecond
	f := newQueryFixture(cfg)

	f.embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	f.index.On("Search", mock.Anything, mock.Anything, 3).Return(scored("ctx"), nil)
	f.chat.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", errors.New("request aborted"))

	_, err := f.engine.Answer(context.Background(), "q", "s1")

	assert.True(t, errors.Is(err, domain.ErrGeneration))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	history, _ := f.engine.History(context.Background(), "s1")
	assert.Empty(t, history)
}

func TestQueryEngine_Answer_HistoryWindow(t *testing.T) {
	cfg := DefaultQueryConfig()
	cfg.HistoryMaxTurns = 2
	f := newQueryFixture(cfg)
	ctx := context.Background()
	require.NoError(t, f.sessions.Append(ctx, "s1", "old q", "old r"))
	require.NoError(t, f.sessions.Append(ctx, "s1", "recent q", "recent r"))

	f.embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	f.index.On("Search", mock.Anything, mock.Anything, 3).Return(scored("ctx"), nil)
	f.chat.On("Complete", mock.Anything, mock.MatchedBy(func(m []PromptMessage) bool {
		return len(m) == 4 && m[1].Content == "recent q" && m[2].Content == "recent r"
	})).Return("ok", nil)

	_, err := f.engine.Answer(ctx, "new q", "s1")

	require.NoError(t, err)
	history, _ := f.engine.History(ctx, "s1")
	assert.Len(t, history, 6)
}

func TestQueryEngine_Answer_SerializesSameSession(t *testing.T) {
	f := newQueryFixture(DefaultQueryConfig())
	ctx := context.Background()

	lease, err := f.sessions.Acquire(ctx, "busy")
	require.NoError(t, err)
	defer lease.Release()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = f.engine.Answer(waitCtx, "q", "busy")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	f.embedder.AssertNotCalled(t, "EmbedQuery", mock.Anything, mock.Anything)
}
