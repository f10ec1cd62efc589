package api

import (
	"errors"
	"fmt"
	"time"
)

type ServerConfig struct {
	// ID 是服務實例的識別，作為 consumer group 內的消費者名稱
	ID      string
	DB      DBConfig
	Redis   RedisConfig
	S3      S3Config
	Auth    AuthConfig
	Auction AuctionConfig
	Sweeper SweeperConfig
	HTTP    HTTPConfig
}

type DBConfig struct {
	User        string
	Password    string
	Host        string
	Port        int
	Database    string
	Schema      string
	AutoMigrate bool
}

// DSN 回傳 postgres 連線字串
func (c DBConfig) DSN() string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
	if c.Schema != "" {
		dsn += "&search_path=" + c.Schema
	}
	return dsn
}

// RedisConfig 的 Addr 為空時服務以單機模式運作，事件只在本機廣播
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	StreamKeys    RedisStreamKeys
	ConsumerGroup string
	StreamMaxLen  int64
	// DistributedLock 為 true 時出價臨界區會再加上 Redis 分散式鎖
	DistributedLock bool
}

type RedisStreamKeys struct {
	Events string
}

// S3Config 的 Bucket 為空時不封存結標文件
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Region          string
	Bucket          string
	PublicBaseURL   string
}

type AuthConfig struct {
	// Secret 是 HS256 簽章金鑰
	Secret string
	// Issuer 不為空時會檢查 token 的 iss
	Issuer string
}

type AuctionConfig struct {
	// MaxBid 為 0 時使用 auction.DefaultMaxBid
	MaxBid            int64
	ExtensionWindow   time.Duration
	ExtensionDuration time.Duration
	LockTimeout       time.Duration
	CommitRetries     int
}

type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

type HTTPConfig struct {
	MaxBodyBytes      int64
	KeepAliveInterval time.Duration
}

// Validate 檢查設定是否完整
func (c ServerConfig) Validate() error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, errors.New("instance id is required"))
	}
	if c.DB.Host != "" && c.DB.Database == "" {
		errs = append(errs, errors.New("db database is required"))
	}
	// 多個實例共用 stream 時必須共用同一份帳本
	if c.DB.Host == "" && c.Redis.Addr != "" {
		errs = append(errs, errors.New("redis requires a shared database"))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth secret is required"))
	}
	if c.Redis.Addr != "" && (c.Redis.StreamKeys.Events == "" || c.Redis.ConsumerGroup == "") {
		errs = append(errs, errors.New("redis stream key and consumer group are required"))
	}
	if c.Redis.DistributedLock && c.Redis.Addr == "" {
		errs = append(errs, errors.New("distributed lock requires redis"))
	}
	if c.Auction.ExtensionWindow < 0 || c.Auction.ExtensionDuration < 0 {
		errs = append(errs, errors.New("extension window and duration cannot be negative"))
	}
	if c.Auction.MaxBid < 0 {
		errs = append(errs, errors.New("max bid cannot be negative"))
	}
	if c.Sweeper.Interval <= 0 {
		errs = append(errs, errors.New("sweeper interval must be positive"))
	}
	return errors.Join(errs...)
}
