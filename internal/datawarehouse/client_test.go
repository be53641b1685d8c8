package datawarehouse_test

import (
	"context"
	"testing"

	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/datawarehouse"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewClient_DisabledConfig(t *testing.T) {
	logger := zap.NewNop()

	client, err := datawarehouse.NewClient(nil, logger)
	assert.NoError(t, err)
	assert.Nil(t, client)

	client, err = datawarehouse.NewClient(&config.DataWarehouseConfig{Enabled: false}, logger)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewClient_MissingCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.DataWarehouseConfig
	}{
		{name: "missing URL", cfg: &config.DataWarehouseConfig{Enabled: true, User: "user", Password: "pass"}},
		{name: "missing user", cfg: &config.DataWarehouseConfig{Enabled: true, URL: "host:1433/db", Password: "pass"}},
		{name: "missing password", cfg: &config.DataWarehouseConfig{Enabled: true, URL: "host:1433/db", User: "user"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := datawarehouse.NewClient(tt.cfg, zap.NewNop())
			assert.NoError(t, err)
			assert.Nil(t, client)
		})
	}
}

func TestClient_NilIsDisabled(t *testing.T) {
	var client *datawarehouse.Client

	assert.False(t, client.IsEnabled())
	assert.NoError(t, client.Close())

	status := client.HealthCheck(context.Background())
	assert.NotNil(t, status)
	assert.Equal(t, "disabled", status.Status)
}

func TestClient_NilRejectsQueries(t *testing.T) {
	var client *datawarehouse.Client
	ctx := context.Background()

	row, err := client.QueryRow(ctx, "SELECT 1")
	assert.Error(t, err)
	assert.Nil(t, row)

	amount, found, err := client.GetInvoicedAmount(ctx, "SOW-2026-01")
	assert.Error(t, err)
	assert.False(t, found)
	assert.True(t, amount.IsZero())
}
