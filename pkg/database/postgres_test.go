package database

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestConnect_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("labelforge"),
		tcpostgres.WithUsername("labelforge"),
		tcpostgres.WithPassword("labelforge"),
		tcpostgres.BasicWaitStrategies(),
	)
	defer func() {
		_ = testcontainers.TerminateContainer(ctr)
	}()
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := Connect(Config{
		Driver:   DriverPostgres,
		Host:     host,
		Port:     port.Int(),
		User:     "labelforge",
		Password: "labelforge",
		DBName:   "labelforge",
	}, hclog.NewNullLogger())
	require.NoError(t, err)

	require.NoError(t, Ping(ctx, db))

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}
