//go:build integration

package storage

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wlockwood/lits/internal/config"
)

func setupPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "lits",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	p, _ := strconv.Atoi(port.Port())

	return config.DatabaseConfig{
		Driver:   config.DriverPostgres,
		Host:     host,
		Port:     p,
		Name:     "lits",
		User:     "test",
		Password: "test",
		MaxConns: 4,
	}
}

func openPostgres(t *testing.T, cfg config.DatabaseConfig) *PostgresStore {
	t.Helper()
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := s.pool.Exec(ctx, `DROP SCHEMA public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func countTable(t *testing.T, s *PostgresStore, table string) int {
	t.Helper()
	var n int
	if err := s.pool.QueryRow(context.Background(), `SELECT count(*) FROM `+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestPostgresStore(t *testing.T) {
	cfg := setupPostgres(t)

	// Each subtest gets a clean schema in the shared container.
	runStoreContract(t, func(t *testing.T) Store { return openPostgres(t, cfg) })

	t.Run("AddImageRollsBack", func(t *testing.T) {
		ctx := context.Background()
		s := openPostgres(t, cfg)

		// pgvector rejects a vector without dimensions, so the second
		// encoding fails after the first one is linked.
		img := testImage("a.jpg")
		_, err := s.AddImage(ctx, img, [][]float32{{0.1, 0.2}, {}})
		require.Error(t, err)

		_, err = s.FindImage(ctx, img.Identity())
		assert.ErrorIs(t, err, ErrNotFound)
		for _, table := range []string{"images", "encodings", "image_encodings"} {
			assert.Zero(t, countTable(t, s, table), table)
		}
	})

	t.Run("AddImageCancelled", func(t *testing.T) {
		s := openPostgres(t, cfg)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		img := testImage("b.jpg")
		_, err := s.AddImage(ctx, img, [][]float32{{0.1, 0.2}, {0.3, 0.4}})
		require.ErrorIs(t, err, context.Canceled)

		_, err = s.FindImage(context.Background(), img.Identity())
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Zero(t, countTable(t, s, "encodings"))
	})

	t.Run("FindImageMultipleMatches", func(t *testing.T) {
		ctx := context.Background()
		s := openPostgres(t, cfg)
		_, err := s.pool.Exec(ctx, `ALTER TABLE images DROP CONSTRAINT images_identity_key`)
		require.NoError(t, err)

		key := testImage("twin.jpg").Identity()
		for i := 0; i < 2; i++ {
			_, err := s.pool.Exec(ctx,
				`INSERT INTO images (id, filename, path, modified_at, size_bytes) VALUES ($1, $2, $3, $4, $5)`,
				uuid.New(), key.Filename, "/photos/twin.jpg", key.ModifiedAt, key.SizeBytes)
			require.NoError(t, err)
		}

		_, err = s.FindImage(ctx, key)
		assert.ErrorIs(t, err, ErrMultipleMatches)

		_, err = s.AddImage(ctx, testImage("twin.jpg"), [][]float32{{0.1, 0.2}})
		assert.ErrorIs(t, err, ErrMultipleMatches)
		assert.Equal(t, 2, countTable(t, s, "images"))
		assert.Zero(t, countTable(t, s, "encodings"))
	})
}
