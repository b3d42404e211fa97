package test

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/segmentio/kafka-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/oms-lab/orderdesk/internal/config"
)

// Postgres is a disposable migrated server. Connections are handed out
// schema-scoped through the DSN, the same way the services connect, so the
// pool behaves identically under concurrency.
type Postgres struct {
	connStr string
	cleanup func()
}

func StartPostgres(ctx context.Context, t *testing.T) *Postgres {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("orderdesk"),
		postgres.WithUsername("orderdesk"),
		postgres.WithPassword("orderdesk"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		cleanup()
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := migrateUp(connStr); err != nil {
		cleanup()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return &Postgres{connStr: connStr, cleanup: cleanup}
}

func (p *Postgres) Cleanup() {
	p.cleanup()
}

// DSN returns the connection string scoped to schema.
func (p *Postgres) DSN(schema string) string {
	return config.WithSearchPath(p.connStr, schema)
}

// Open returns a pooled handle whose every connection is scoped to schema.
func (p *Postgres) Open(schema string) (*sql.DB, error) {
	db, err := sql.Open("postgres", p.DSN(schema))
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", schema, err)
	}
	return db, nil
}

// migrateUp applies the repo's migrations, resolved relative to this file so
// tests work from any package directory.
func migrateUp(connStr string) error {
	_, thisFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(filepath.Dir(thisFile)), "migrations")

	m, err := migrate.New("file://"+migrationsDir, connStr)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Kafka is a disposable broker plus topic administration for the worker's
// subscriptions.
type Kafka struct {
	Brokers []string
	cleanup func()
}

func StartKafka(ctx context.Context, t *testing.T) *Kafka {
	t.Helper()

	container, err := tckafka.Run(ctx,
		"confluentinc/confluent-local:7.8.0",
		tckafka.WithClusterID("orderdesk-test"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	brokers, err := container.Brokers(ctx)
	if err != nil {
		cleanup()
		t.Fatalf("failed to get kafka brokers: %v", err)
	}
	if len(brokers) == 0 {
		cleanup()
		t.Fatal("kafka container reported no brokers")
	}

	return &Kafka{Brokers: brokers, cleanup: cleanup}
}

func (k *Kafka) Cleanup() {
	k.cleanup()
}

// CreateTopics pre-creates single-partition topics on the controller, one
// per routing key, so consumers do not race topic auto-creation.
func (k *Kafka) CreateTopics(topics ...string) error {
	conn, err := kafka.Dial("tcp", k.Brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("resolve controller: %w", err)
	}

	ctrlConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer func() { _ = ctrlConn.Close() }()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}

	if err := ctrlConn.CreateTopics(configs...); err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	return nil
}
