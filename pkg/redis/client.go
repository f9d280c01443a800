package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultTimeout = 5 * time.Second

// Config configures a topology-agnostic Redis connection. URL, when set, wins
// over Addrs and selects a single-node client.
type Config struct {
	URL          string
	Addrs        []string // single: 1 addr, sentinel: sentinel addrs, cluster: seed nodes
	MasterName   string   // sentinel only
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Configured reports whether any connection target was supplied.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.URL) != "" || len(c.Addrs) > 0
}

// NewClient connects and pings. go-redis routes UniversalOptions internally:
// MasterName set selects Sentinel, multiple Addrs select Cluster.
func NewClient(ctx context.Context, cfg Config) (goredis.UniversalClient, error) {
	var client goredis.UniversalClient
	switch {
	case strings.TrimSpace(cfg.URL) != "":
		opts, err := goredis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.DialTimeout = orDefault(opts.DialTimeout, cfg.DialTimeout)
		opts.ReadTimeout = orDefault(opts.ReadTimeout, cfg.ReadTimeout)
		opts.WriteTimeout = orDefault(opts.WriteTimeout, cfg.WriteTimeout)
		client = goredis.NewClient(opts)
	case len(cfg.Addrs) > 0:
		client = goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:        cfg.Addrs,
			MasterName:   cfg.MasterName,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  orDefault(0, cfg.DialTimeout),
			ReadTimeout:  orDefault(0, cfg.ReadTimeout),
			WriteTimeout: orDefault(0, cfg.WriteTimeout),
		})
	default:
		return nil, fmt.Errorf("redis url or at least one address is required")
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func orDefault(current, configured time.Duration) time.Duration {
	if current > 0 {
		return current
	}
	if configured > 0 {
		return configured
	}
	return defaultTimeout
}
