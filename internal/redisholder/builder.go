package redisholder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/martpet/hotspace-aws/internal/config"
)

// Build connects to Redis, cluster mode first, and keeps the connection
// healthy in the background until ctx is done.
func Build(ctx context.Context, cfg *config.RedisConfig) (*Holder, error) {
	cl, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	h := NewHolder(cl)
	go healthLoop(ctx, h, cfg)
	return h, nil
}

func connect(ctx context.Context, cfg *config.RedisConfig) (redis.UniversalClient, error) {
	cl, clusterErr := newClusterClient(ctx, cfg)
	if clusterErr == nil {
		return cl, nil
	}
	single, err := newClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", errors.Join(clusterErr, err))
	}
	log.Printf("[redis] cluster client failed (%v); using single-node client", clusterErr)
	return single, nil
}

func healthLoop(ctx context.Context, h *Holder, cfg *config.RedisConfig) {
	interval := cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log.Printf("[redis] health loop started (interval=%v)", interval)

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = h.Close()
			log.Printf("[redis] health loop stopped (%v)", ctx.Err())
			return
		case <-t.C:
			check(ctx, h, cfg)
		}
	}
}

// check pings the current client and swaps in a fresh one when it fails.
func check(ctx context.Context, h *Holder, cfg *config.RedisConfig) {
	err := h.Ping(ctx)
	if err == nil {
		return
	}
	log.Printf("[redis] ping failed (%v); attempting reconnect", err)

	newCl, err := connect(ctx, cfg)
	if err != nil {
		log.Printf("[redis] reconnect failed: %v", err)
		return
	}
	if old := h.swap(newCl); old != nil {
		_ = old.Close()
	}
	log.Printf("[redis] reconnected successfully")
}

func newClusterClient(ctx context.Context, cfg *config.RedisConfig) (*redis.ClusterClient, error) {
	if len(cfg.Nodes) < 1 {
		return nil, errors.New("no nodes defined")
	}

	nodeAddrs := make([]string, 0, len(cfg.Nodes))
	for _, node := range cfg.Nodes {
		nodeAddrs = append(nodeAddrs, node.Addr())
	}

	cl := redis.NewClusterClient(&redis.ClusterOptions{
		RouteByLatency: true,
		Password:       cfg.Password,
		Addrs:          nodeAddrs,
		DialTimeout:    cfg.DialTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		PoolSize:       cfg.PoolSize,
		PoolTimeout:    30 * time.Second,
		MaxRetries:     3,
	})

	if err := pingWithTimeout(ctx, cl, cfg.DialTimeout); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("error pinging redis cluster: %w", err)
	}
	return cl, nil
}

func newClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	var stickyErr = errors.New("no nodes defined")

	for _, node := range cfg.Nodes {
		cl := redis.NewClient(&redis.Options{
			Addr:         node.Addr(),
			Password:     cfg.Password,
			DB:           cfg.DatabaseID,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
		})

		if err := pingWithTimeout(ctx, cl, cfg.DialTimeout); err != nil {
			_ = cl.Close()
			stickyErr = fmt.Errorf("error pinging redis server %s: %w", node.Addr(), err)
			continue
		}
		return cl, nil
	}

	return nil, stickyErr
}

func pingWithTimeout(ctx context.Context, cl redis.UniversalClient, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return cl.Ping(ctx).Err()
}
