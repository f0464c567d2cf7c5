package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/warden/internal/history"
)

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	clickHouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start ClickHouse container: %v", err)
	}
	defer func() {
		if terr := clickHouseContainer.Terminate(ctx); terr != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", terr)
		}
	}()

	host, err := clickHouseContainer.Host(ctx)
	require.NoError(t, err)
	port, err := clickHouseContainer.MappedPort(ctx, "9000")
	require.NoError(t, err)

	sink, err := New(host+":"+port.Port(), "warden_events_test")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	require.NoError(t, sink.EnsureSchema(ctx))

	events := []history.Event{
		{Type: history.EventLaunched, OccurredAt: time.Now().UTC(), Instance: "alpha", PID: 100, Port: 6001},
		{Type: history.EventPortChanged, OccurredAt: time.Now().UTC(), Instance: "alpha", PID: 100, Port: 6002, Detail: "port=6002"},
		{Type: history.EventReleased, OccurredAt: time.Now().UTC(), Instance: "alpha", PID: 100, Port: 6002},
	}
	for _, e := range events {
		require.NoError(t, sink.Send(ctx, e))
	}

	var count uint64
	row := sink.conn.QueryRow(ctx, `SELECT count() FROM warden_events_test WHERE instance = 'alpha'`)
	require.NoError(t, row.Scan(&count))
	require.Equal(t, uint64(len(events)), count)
}
