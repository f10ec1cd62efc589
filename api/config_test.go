package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() ServerConfig {
	return ServerConfig{
		ID:      "instance-1",
		DB:      DBConfig{Host: "localhost", Port: 5432, Database: "auction"},
		Auth:    AuthConfig{Secret: "secret"},
		Sweeper: SweeperConfig{Interval: time.Second},
	}
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *ServerConfig)
		wantErr bool
	}{
		{name: "valid", modify: func(c *ServerConfig) {}},
		{name: "missing id", modify: func(c *ServerConfig) { c.ID = "" }, wantErr: true},
		{name: "in-memory store without db", modify: func(c *ServerConfig) { c.DB = DBConfig{} }},
		{name: "db host without database", modify: func(c *ServerConfig) { c.DB.Database = "" }, wantErr: true},
		{
			name: "redis without db",
			modify: func(c *ServerConfig) {
				c.DB = DBConfig{}
				c.Redis.Addr = "localhost:6379"
				c.Redis.StreamKeys.Events = "auction:events"
				c.Redis.ConsumerGroup = "journal"
			},
			wantErr: true,
		},
		{name: "missing secret", modify: func(c *ServerConfig) { c.Auth.Secret = "" }, wantErr: true},
		{name: "redis without stream", modify: func(c *ServerConfig) { c.Redis.Addr = "localhost:6379" }, wantErr: true},
		{
			name: "redis with stream",
			modify: func(c *ServerConfig) {
				c.Redis.Addr = "localhost:6379"
				c.Redis.StreamKeys.Events = "auction:events"
				c.Redis.ConsumerGroup = "journal"
				c.Redis.DistributedLock = true
			},
		},
		{name: "distributed lock without redis", modify: func(c *ServerConfig) { c.Redis.DistributedLock = true }, wantErr: true},
		{name: "negative window", modify: func(c *ServerConfig) { c.Auction.ExtensionWindow = -time.Second }, wantErr: true},
		{name: "negative max bid", modify: func(c *ServerConfig) { c.Auction.MaxBid = -1 }, wantErr: true},
		{name: "zero sweep interval", modify: func(c *ServerConfig) { c.Sweeper.Interval = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDBConfig_DSN(t *testing.T) {
	c := DBConfig{User: "u", Password: "p", Host: "db", Port: 5432, Database: "auction"}
	assert.Equal(t, "postgres://u:p@db:5432/auction?sslmode=disable", c.DSN())
	c.Schema = "bidding"
	assert.Equal(t, "postgres://u:p@db:5432/auction?sslmode=disable&search_path=bidding", c.DSN())
}
