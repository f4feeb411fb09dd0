package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/vault"
	"github.com/testcontainers/testcontainers-go/wait"

	"fp-innova/internal/database"

	_ "github.com/lib/pq"
)

// JWTSecret signs tokens in integration tests
const JWTSecret = "test-secret-key-for-testing-only"

// Postgres holds a migrated PostgreSQL container
type Postgres struct {
	Container    *postgres.PostgresContainer
	DB           *sqlx.DB
	DBConnString string
}

// Vault holds a dev-mode Vault container
type Vault struct {
	Container *vault.VaultContainer
	Addr      string
	Token     string
}

// TestContainers holds references to test containers
type TestContainers struct {
	*Postgres
	Vault *Vault
}

// SetupTestContainers starts PostgreSQL and Vault. Containers are terminated via t.Cleanup.
func SetupTestContainers(t *testing.T) *TestContainers {
	t.Helper()
	return &TestContainers{
		Postgres: SetupPostgres(t),
		Vault:    SetupVault(t),
	}
}

// SetupPostgres starts PostgreSQL and applies all migrations
func SetupPostgres(t *testing.T) *Postgres {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18",
		postgres.WithDatabase("fpinnova_test"),
		postgres.WithUsername("fpinnova_test"),
		postgres.WithPassword("fpinnova_test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.NewMigrationExecutor(db).RunMigrations(ctx, MigrationsDir(t)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return &Postgres{Container: container, DB: db, DBConnString: connStr}
}

// SetupVault starts Vault in dev mode
func SetupVault(t *testing.T) *Vault {
	t.Helper()
	ctx := context.Background()

	container, err := vault.Run(ctx,
		"hashicorp/vault:1.15",
		vault.WithToken("test-token"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Vault server started!").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start Vault container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("Failed to terminate Vault container: %v", err)
		}
	})

	addr, err := container.HttpHostAddress(ctx)
	if err != nil {
		t.Fatalf("Failed to get Vault address: %v", err)
	}
	if !strings.HasPrefix(addr, "http") {
		addr = "http://" + addr
	}

	return &Vault{Container: container, Addr: addr, Token: "test-token"}
}

// MigrationsDir finds the migrations directory by walking up from the test's package
func MigrationsDir(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("migrations directory not found")
		}
		dir = parent
	}
}
