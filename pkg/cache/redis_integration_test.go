//go:build integration

package cache

import (
	"context"
	"testing"

	"github.com/Sternrassler/parkrun-harvester/pkg/results"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisStore_Integration(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(client, "it")
	ctx := context.Background()

	if err := store.Prepare(ctx, "eastville"); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if err := store.WriteRaw(ctx, "eastville", 1, []byte("<html/>")); err != nil {
		t.Fatalf("WriteRaw() error = %v", err)
	}
	if err := store.WriteRaw(ctx, "eastville", 1, []byte("<other/>")); err != nil {
		t.Fatalf("WriteRaw() error = %v", err)
	}
	raw, err := store.ReadRaw(ctx, "eastville", 1)
	if err != nil || string(raw) != "<html/>" {
		t.Fatalf("ReadRaw() = %q, %v", raw, err)
	}

	page := results.NewPageResult(1, []results.ResultRecord{{Position: 1, Name: "A"}})
	if err := store.WriteParsed(ctx, "eastville", 1, page); err != nil {
		t.Fatalf("WriteParsed() error = %v", err)
	}
	got, err := store.ReadParsed(ctx, "eastville", 1)
	if err != nil {
		t.Fatalf("ReadParsed() error = %v", err)
	}
	if got.Records[0].Name != "A" {
		t.Errorf("ReadParsed() = %+v", got)
	}

	ttl, err := client.TTL(ctx, "it:parsed:eastville:1").Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl != -1 {
		t.Errorf("parsed key TTL = %v, want no expiry", ttl)
	}
}
