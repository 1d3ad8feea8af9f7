//go:build integration

package xmongo

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xshadow/pkg/config/xshadowconf"
)

func startMongo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not found in PATH, skipping integration test")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7.0",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("mongo container not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("mongodb://%s:%s", host, port.Port())
}

func TestShadowIsolation_Integration(t *testing.T) {
	bizURI := startMongo(t)
	shadowURI := startMongo(t)

	client, err := mongo.Connect(options.Client().ApplyURI(bizURI))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	m, err := New(xshadowconf.Static(docWith(xshadowconf.MongoConfig{Key: "orders", URI: shadowURI})),
		WithLogger(slog.New(slog.DiscardHandler)), WithPingTimeout(10*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	orders, err := m.Register("orders", client.Database("orders"))
	require.NoError(t, err)

	ctx := shadowCtx(t)
	coll, err := orders.Collection(ctx, "items")
	require.NoError(t, err)
	_, err = coll.InsertOne(ctx, bson.M{"sku": "pt-1"})
	require.NoError(t, err)

	n, err := client.Database("orders").Collection("items").CountDocuments(context.Background(), bson.M{})
	require.NoError(t, err)
	assert.Zero(t, n, "影子写入不落到业务集群")

	n, err = coll.CountDocuments(ctx, bson.M{"sku": "pt-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
