package main

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"auctionhouse/api"
	"auctionhouse/auction"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")
	pflag.String("instance-id", "", "consumer name of this instance, defaults to hostname")
	pflag.String("log-level", "info", "debug, info, warn or error")
	pflag.Int64("max-body-bytes", 64<<10, "")
	pflag.Duration("sse-keepalive", 30*time.Second, "")

	// auth config
	pflag.String("auth-secret", "", "HS256 secret of access tokens")
	pflag.String("auth-issuer", "", "")

	// auction policy
	pflag.Int64("auction-max-bid", auction.DefaultMaxBid, "upper bound of a single bid in minor units")
	pflag.Duration("auction-extension-window", 2*time.Minute, "")
	pflag.Duration("auction-extension-duration", 2*time.Minute, "")
	pflag.Duration("auction-lock-timeout", 5*time.Second, "")
	pflag.Int("auction-commit-retries", 3, "")

	// sweeper config
	pflag.Duration("sweeper-interval", time.Second, "")
	pflag.Int("sweeper-batch-size", 100, "")

	// s3 config
	pflag.String("s3-endpoint", "", "")
	pflag.String("s3-region", "", "")
	pflag.String("s3-bucket", "", "")
	pflag.String("s3-public-base-url", "", "")
	pflag.String("s3-access-key-id", "", "")
	pflag.String("s3-secret-access-key", "", "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")
	pflag.Bool("db-auto-migrate", false, "")

	// redis config
	pflag.String("redis-addr", "", "empty to run as a single instance")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "auctionhouse:", "")
	pflag.Bool("redis-distributed-lock", false, "")
	pflag.Int64("redis-stream-max-len", 100000, "")
	pflag.String("redis-consumer-group", "auction-journal", "")

	// redis stream keys
	pflag.String("redis-stream-key-for-events", "auctionhouse-events-stream", "")

	// tracing
	pflag.String("otel-endpoint", "", "OTLP/HTTP endpoint, empty to disable tracing")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("AUCTION")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	return Args{
		ServerURL:    viper.GetString("server-url"),
		LogLevel:     viper.GetString("log-level"),
		OtelEndpoint: viper.GetString("otel-endpoint"),
		ServerConfig: api.ServerConfig{
			ID: instanceID(viper.GetString("instance-id")),
			Auth: api.AuthConfig{
				Secret: viper.GetString("auth-secret"),
				Issuer: viper.GetString("auth-issuer"),
			},
			Auction: api.AuctionConfig{
				MaxBid:            viper.GetInt64("auction-max-bid"),
				ExtensionWindow:   viper.GetDuration("auction-extension-window"),
				ExtensionDuration: viper.GetDuration("auction-extension-duration"),
				LockTimeout:       viper.GetDuration("auction-lock-timeout"),
				CommitRetries:     viper.GetInt("auction-commit-retries"),
			},
			Sweeper: api.SweeperConfig{
				Interval:  viper.GetDuration("sweeper-interval"),
				BatchSize: viper.GetInt("sweeper-batch-size"),
			},
			HTTP: api.HTTPConfig{
				MaxBodyBytes:      viper.GetInt64("max-body-bytes"),
				KeepAliveInterval: viper.GetDuration("sse-keepalive"),
			},
			S3: api.S3Config{
				Endpoint:        viper.GetString("s3-endpoint"),
				Region:          viper.GetString("s3-region"),
				Bucket:          viper.GetString("s3-bucket"),
				PublicBaseURL:   viper.GetString("s3-public-base-url"),
				AccessKeyID:     viper.GetString("s3-access-key-id"),
				SecretAccessKey: viper.GetString("s3-secret-access-key"),
			},
			DB: api.DBConfig{
				User:        viper.GetString("db-user"),
				Password:    viper.GetString("db-password"),
				Host:        viper.GetString("db-host"),
				Port:        viper.GetInt("db-port"),
				Database:    viper.GetString("db-database"),
				Schema:      viper.GetString("db-schema"),
				AutoMigrate: viper.GetBool("db-auto-migrate"),
			},
			Redis: api.RedisConfig{
				Addr:            viper.GetString("redis-addr"),
				Password:        viper.GetString("redis-password"),
				DB:              viper.GetInt("redis-db"),
				KeyPrefix:       viper.GetString("redis-key-prefix"),
				DistributedLock: viper.GetBool("redis-distributed-lock"),
				StreamMaxLen:    viper.GetInt64("redis-stream-max-len"),
				ConsumerGroup:   viper.GetString("redis-consumer-group"),
				StreamKeys: api.RedisStreamKeys{
					Events: viper.GetString("redis-stream-key-for-events"),
				},
			},
		},
	}
}

type Args struct {
	ServerURL    string
	LogLevel     string
	OtelEndpoint string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() error {
	var errs []error
	if args.ServerURL == "" {
		errs = append(errs, errors.New("server url is required"))
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(args.LogLevel)); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, args.ServerConfig.Validate())
	return errors.Join(errs...)
}

func (args Args) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(args.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// instanceID 未指定時使用主機名稱
func instanceID(id string) string {
	if id != "" {
		return id
	}
	hostname, err := os.Hostname()
	if err != nil {
		return ""
	}
	return hostname
}
