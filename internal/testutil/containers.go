// Package testutil starts the backing services integration and e2e tests
// run against.
package testutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgvectorImage = "pgvector/pgvector:0.8.1-pg18"
	rustfsImage   = "rustfs/rustfs:latest"
	redisImage    = "redis:7-alpine"

	dbCredential = "better404"

	// RustFSAccessKey is both the access key and the secret of the test store.
	RustFSAccessKey = "rustfsadmin"
)

// Service is a started container and its mapped address.
type Service struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

// Addr returns host:port.
func (s *Service) Addr() string {
	return s.Host + ":" + s.Port
}

// Terminate stops and removes the container
func (s *Service) Terminate(ctx context.Context) error {
	return s.Container.Terminate(ctx)
}

func start(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, port string) *Service {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get %s host: %v", req.Image, err)
	}

	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("failed to get %s port: %v", req.Image, err)
	}

	return &Service{Container: container, Host: host, Port: mapped.Port()}
}

// PostgresContainer is Postgres with the pgvector extension available
type PostgresContainer struct {
	*Service
}

func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	svc := start(ctx, t, testcontainers.ContainerRequest{
		Image:        pgvectorImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     dbCredential,
			"POSTGRES_PASSWORD": dbCredential,
			"POSTGRES_DB":       dbCredential,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}, "5432")
	return &PostgresContainer{Service: svc}
}

func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", dbCredential, dbCredential, pc.Addr(), dbCredential)
}

// RustFSContainer is an S3-compatible store for snapshot archive tests
type RustFSContainer struct {
	*Service
}

func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	svc := start(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSAccessKey,
			"RUSTFS_SECRET_KEY": RustFSAccessKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000")
	return &RustFSContainer{Service: svc}
}

func (rc *RustFSContainer) Endpoint() string {
	return "http://" + rc.Addr()
}

// NewRedisContainer starts a Redis for the shared rate limiter.
func NewRedisContainer(ctx context.Context, t *testing.T) *Service {
	return start(ctx, t, testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}, "6379")
}

// NewTestPool connects to pc, retrying while the server finishes booting,
// and applies migrationsDir with golang-migrate as serve does.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	var pool *pgxpool.Pool
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.New(ctx, pc.ConnectionString())
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	if err := RunMigrations(pc.ConnectionString(), migrationsDir); err != nil {
		pool.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return pool
}

// RunMigrations applies every up migration in dir.
func RunMigrations(databaseURL, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+abs, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
