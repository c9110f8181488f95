//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/database"
	"github.com/cloo-solutions/docchat/internal/loader"
	"github.com/cloo-solutions/docchat/internal/openai"
	"github.com/cloo-solutions/docchat/internal/repository"
	"github.com/cloo-solutions/docchat/internal/server"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/cloo-solutions/docchat/internal/storage"
	"github.com/cloo-solutions/docchat/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// vocabulary maps each keyword to one embedding dimension of the fake model.
var vocabulary = []string{"entropy", "momentum", "photosynthesis", "voltage", "enzyme", "orbit", "derivative"}

const (
	testBucket     = "course"
	contextMarker  = "based only on the following context:\n\n"
	fakeDimensions = 8
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	RustFSC    *testutil.RustFSContainer
	Pool       *pgxpool.Pool
	Model      *FakeModel
	Index      *repository.PgVectorIndex
	Runs       *repository.BuildRunRepository
	Builder    *service.CorpusBuilder
	ServerURL  string
	BinaryDir  string
	HTTPClient *http.Client

	s3      *s3.Client
	closers []func()
}

// SetupE2EEnv starts Postgres, RustFS and a fake model server, then serves
// the chat API against them.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()
	log := zap.NewNop()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	if err := database.Migrate(pgC.ConnectionString(), "file://../../migrations", log); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	pool, err := database.NewPool(ctx, database.Config{URL: pgC.ConnectionString()})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	env.Pool = pool

	env.s3 = newRawS3Client(ctx, t, s3C)
	if _, err := env.s3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(testBucket)}); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	env.Model = NewFakeModel()
	modelSrv := httptest.NewServer(env.Model)
	env.closers = append(env.closers, modelSrv.Close)

	client := openai.NewClient(openai.Config{
		BaseURL:             modelSrv.URL + "/v1",
		EmbeddingDimensions: fakeDimensions,
	})

	storeClient, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     s3C.AccessKey,
		SecretAccessKey: s3C.SecretKey,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	parser := loader.NewParser(nil, nil)
	docs := loader.NewRouter(loader.NewFileSystemLoader(parser), loader.NewS3Loader(storeClient, parser))

	chunker, err := service.NewChunker(service.ChunkConfig{MaxSize: 200, Overlap: 20})
	if err != nil {
		t.Fatalf("failed to create chunker: %v", err)
	}

	env.Index = repository.NewPgVectorIndex(pool, repository.DefaultIndexName, fakeDimensions)
	env.Runs = repository.NewBuildRunRepository(pool)
	env.Builder = service.NewCorpusBuilder(docs, chunker, client, env.Index, 16, log).WithRunRecorder(env.Runs)

	queryCfg := service.DefaultQueryConfig()
	queryCfg.TopK = 1
	engine := service.NewQueryEngine(client, env.Index, client, service.NewSessionStore(service.SessionStoreConfig{}), queryCfg, log)

	router := server.NewRouter(server.RouterConfig{
		ChatHandler:   handlers.NewChatHandler(engine),
		HealthHandler: handlers.NewHealthHandler(env.Index),
		Logger:        log,
	})
	apiSrv := httptest.NewServer(router)
	env.closers = append(env.closers, apiSrv.Close)
	env.ServerURL = apiSrv.URL

	return env
}

func newRawS3Client(ctx context.Context, t *testing.T, rc *testutil.RustFSContainer) *s3.Client {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(rc.AccessKey, rc.SecretKey, "")),
	)
	if err != nil {
		t.Fatalf("failed to load AWS config: %v", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(rc.Endpoint())
		o.UsePathStyle = true
	})
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// PutDocument uploads a document under the test bucket.
func (e *E2ETestEnv) PutDocument(key, body string) {
	_, err := e.s3.PutObject(e.Ctx, &s3.PutObjectInput{
		Bucket: aws.String(testBucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(body),
	})
	if err != nil {
		e.T.Fatalf("failed to put %s: %v", key, err)
	}
}

// BucketURI returns the s3:// source for prefix in the test bucket.
func (e *E2ETestEnv) BucketURI(prefix string) string {
	return "s3://" + testBucket + "/" + prefix
}

// BuildBinaries builds the docchat client binary
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "docchat-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "docchat"), "./cmd/docchat")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build docchat: %v\n%s", err, out)
	}
}

// RunDocchat runs the docchat CLI against the test server.
func (e *E2ETestEnv) RunDocchat(args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "docchat"), args...)
	cmd.Dir = e.BinaryDir
	cmd.Env = append(os.Environ(), fmt.Sprintf("DOCCHAT_API_URL=%s", e.ServerURL))
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// Response is a raw HTTP result from the chat API.
type Response struct {
	StatusCode int
	Body       map[string]any
}

// Ask posts question to the session.
func (e *E2ETestEnv) Ask(sessionID, question string) *Response {
	return e.doRequest(http.MethodPost, "/chat/"+sessionID, map[string]string{"question": question})
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) *Response {
	return e.doRequest(http.MethodGet, path, nil)
}

func (e *E2ETestEnv) doRequest(method, path string, body any) *Response {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			e.T.Fatalf("failed to marshal body: %v", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		e.T.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	out := &Response{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&out.Body); err != nil {
		e.T.Fatalf("failed to decode %s %s response: %v", method, path, err)
	}
	return out
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FakeModel serves the OpenAI embeddings and chat completion endpoints.
// Embeddings count vocabulary words; the chat reply is the first line of the
// top-ranked context chunk.
type FakeModel struct {
	mu       sync.Mutex
	requests [][]chatMessage
}

func NewFakeModel() *FakeModel {
	return &FakeModel{}
}

// ChatRequests returns the message lists received so far.
func (m *FakeModel) ChatRequests() [][]chatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]chatMessage(nil), m.requests...)
}

func (m *FakeModel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v1/embeddings":
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": embed(text)}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})

	case "/v1/chat/completions":
		var req struct {
			Messages []chatMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.requests = append(m.requests, req.Messages)
		m.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": topContextLine(req.Messages)}},
			},
		})

	default:
		http.NotFound(w, r)
	}
}

func embed(text string) []float32 {
	vec := make([]float32, fakeDimensions)
	lower := strings.ToLower(text)
	for i, word := range vocabulary {
		vec[i] = float32(strings.Count(lower, word))
	}
	vec[fakeDimensions-1] = 0.01
	return vec
}

func topContextLine(messages []chatMessage) string {
	if len(messages) == 0 {
		return ""
	}
	_, retrieved, ok := strings.Cut(messages[0].Content, contextMarker)
	if !ok {
		return ""
	}
	line, _, _ := strings.Cut(retrieved, "\n")
	return strings.TrimSpace(line)
}
