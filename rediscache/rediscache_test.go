package rediscache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestKeyIsStableAndNamespaced(t *testing.T) {
	t.Parallel()

	c := NewWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), 0, nil)
	defer c.Close()

	k1 := c.Key("fingerprint", "/img/a.jpg|16|1024|1")
	k2 := c.Key("fingerprint", "/img/a.jpg|16|1024|1")
	k3 := c.Key("fingerprint", "/img/a.jpg|16|1024|2")

	if k1 != k2 {
		t.Errorf("same input gave %q and %q", k1, k2)
	}
	if k1 == k3 {
		t.Errorf("different input gave same key %q", k1)
	}
	if !strings.HasPrefix(k1, "imagecurate:fingerprint:") {
		t.Errorf("key %q missing namespace", k1)
	}
	if c.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", c.ttl, DefaultTTL)
	}
}

func TestGetUnreachableIsMiss(t *testing.T) {
	t.Parallel()

	c := NewWithClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	}), time.Minute, nil)
	defer c.Close()

	var dest string
	if c.Get(context.Background(), "imagecurate:x:y", &dest) {
		t.Error("Get on unreachable redis reported a hit")
	}
	c.Set(context.Background(), "imagecurate:x:y", "value")
}

func TestRoundTripIntegration(t *testing.T) {
	if os.Getenv("IMAGECURATE_INTEGRATION") != "1" {
		t.Skip("set IMAGECURATE_INTEGRATION=1 to run Redis tests")
	}
	t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("container endpoint: %v", err)
	}

	c, err := New(ctx, Options{Addr: addr, TTL: time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	key := c.Key("fingerprint", t.Name())
	var got string
	if c.Get(ctx, key, &got) {
		t.Fatal("Get before Set reported a hit")
	}

	c.Set(ctx, key, "ffee0011")
	if !c.Get(ctx, key, &got) {
		t.Fatal("Get after Set reported a miss")
	}
	if got != "ffee0011" {
		t.Errorf("Get = %q, want %q", got, "ffee0011")
	}

	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within 1m", ttl)
	}
}
