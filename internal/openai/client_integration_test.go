//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func integrationClient(t *testing.T) *Client {
	t.Helper()
	baseURL := os.Getenv("DOCCHAT_OPENAI_BASE_URL")
	apiKey := os.Getenv("DOCCHAT_OPENAI_API_KEY")
	if baseURL == "" && apiKey == "" {
		t.Skip("DOCCHAT_OPENAI_BASE_URL / DOCCHAT_OPENAI_API_KEY not set, skipping integration test")
	}
	return NewClient(Config{APIKey: apiKey, BaseURL: baseURL})
}

func TestIntegration_EmbedQuery_RealAPI(t *testing.T) {
	client := integrationClient(t)

	embedding, err := client.EmbedQuery(context.Background(), "This is a test document for generating embeddings.")

	require.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)
}

func TestIntegration_Complete_RealAPI(t *testing.T) {
	client := integrationClient(t)

	answer, err := client.Complete(context.Background(), []service.PromptMessage{
		{Role: service.PromptRoleUser, Content: "Reply with the single word: ok"},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, answer)
}
