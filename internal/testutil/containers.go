package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/docchat/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const (
	pgCredential     = "docchat"
	rustfsCredential = "rustfsadmin"
)

// endpoint is a started container and the host:port it is reachable on.
type endpoint struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

func (e endpoint) terminate() error {
	return testcontainers.TerminateContainer(e.Container)
}

func start(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, port string) endpoint {
	t.Helper()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", req.Image, err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("%s host: %v", req.Image, err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("%s port %s: %v", req.Image, port, err)
	}
	return endpoint{Container: c, Host: host, Port: mapped.Port()}
}

// PostgresContainer is a pgvector-enabled Postgres.
type PostgresContainer struct {
	endpoint
	Database string
}

// NewPostgresContainer starts Postgres with the vector extension available.
func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	ep := start(ctx, t, testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:0.8.1-pg18",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     pgCredential,
			"POSTGRES_PASSWORD": pgCredential,
			"POSTGRES_DB":       pgCredential,
		},
		// the first "ready" line comes from the init-time server
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(time.Minute),
	}, "5432")
	return &PostgresContainer{endpoint: ep, Database: pgCredential}
}

// ConnectionString returns a postgres:// URL for the container.
func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%[1]s:%[1]s@%s:%s/%s?sslmode=disable",
		pgCredential, pc.Host, pc.Port, pc.Database)
}

func (pc *PostgresContainer) Terminate(context.Context) error {
	return pc.terminate()
}

// RustFSContainer is an S3-compatible object store.
type RustFSContainer struct {
	endpoint
	AccessKey string
	SecretKey string
}

func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	ep := start(ctx, t, testcontainers.ContainerRequest{
		Image:        "rustfs/rustfs:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": rustfsCredential,
			"RUSTFS_SECRET_KEY": rustfsCredential,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000")
	return &RustFSContainer{endpoint: ep, AccessKey: rustfsCredential, SecretKey: rustfsCredential}
}

// Endpoint returns the S3 API base URL.
func (rc *RustFSContainer) Endpoint() string {
	return fmt.Sprintf("http://%s:%s", rc.Host, rc.Port)
}

func (rc *RustFSContainer) Terminate(context.Context) error {
	return rc.terminate()
}

// NewTestPool migrates pc with golang-migrate from migrationsDir and returns
// a connected pool. Connecting is retried while the server settles.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	abs, err := filepath.Abs(migrationsDir)
	if err != nil {
		t.Fatalf("resolve migrations dir: %v", err)
	}
	if err := database.Migrate(pc.ConnectionString(), "file://"+filepath.ToSlash(abs), zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var pool *pgxpool.Pool
	for attempt := 1; ; attempt++ {
		pool, err = database.NewPool(ctx, database.Config{URL: pc.ConnectionString()})
		if err == nil {
			return pool
		}
		if attempt == 5 {
			t.Fatalf("connect after %d attempts: %v", attempt, err)
		}
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
}

// TruncateAll empties the migrated tables. Chunk index tables are created at
// runtime and belong to the tests that build them.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, "TRUNCATE TABLE build_runs"); err != nil {
		return fmt.Errorf("truncate build_runs: %w", err)
	}
	return nil
}
