package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync/atomic"

	"github.com/cenkalti/backoff/v5"
	goredis "github.com/redis/go-redis/v9"
)

// BackendKind selects which Redis deployment topology to dial.
type BackendKind int

const (
	BackendStandalone BackendKind = iota
	BackendMasterReplica
	BackendSentinel
)

// BackendConfig configures dialing for any of the three supported
// topologies (spec §4.3).
type BackendConfig struct {
	Kind BackendKind

	// Standalone: Addrs[0] is the single endpoint.
	// MasterReplica: Addrs[0] is the master, Addrs[1:] are read replicas.
	// Sentinel: Addrs are the sentinel endpoints.
	Addrs []string

	SentinelMasterName string

	Username, Password string
	DB                 int
	TLS                *tls.Config

	// FailoverRetries bounds Sentinel master re-resolution attempts on
	// initial dial (spec's sentinel_failover_retries).
	FailoverRetries int
}

// Backend owns the pooled connections used by both the client and server
// halves of the Redis gateway transport. List-inspection reads (LLEN, for
// queue-capacity checks) may be load-balanced across replicas; all
// mutating and blocking operations go through the writer.
type Backend struct {
	writer  *goredis.Client
	readers []*goredis.Client
	nextRO  uint64
}

// NewBackend dials according to cfg, retrying Sentinel master resolution
// with bounded backoff.
func NewBackend(ctx context.Context, cfg BackendConfig) (*Backend, error) {
	switch cfg.Kind {
	case BackendStandalone:
		if len(cfg.Addrs) < 1 {
			return nil, fmt.Errorf("standalone backend requires exactly one address")
		}
		c := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addrs[0],
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
			TLSConfig: cfg.TLS,
		})
		return &Backend{writer: c}, nil

	case BackendMasterReplica:
		if len(cfg.Addrs) < 1 {
			return nil, fmt.Errorf("master-replica backend requires at least a master address")
		}
		writer := goredis.NewClient(&goredis.Options{
			Addr: cfg.Addrs[0], Username: cfg.Username, Password: cfg.Password, DB: cfg.DB, TLSConfig: cfg.TLS,
		})
		readers := make([]*goredis.Client, 0, len(cfg.Addrs)-1)
		for _, addr := range cfg.Addrs[1:] {
			readers = append(readers, goredis.NewClient(&goredis.Options{
				Addr: addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB, TLSConfig: cfg.TLS,
			}))
		}
		return &Backend{writer: writer, readers: readers}, nil

	case BackendSentinel:
		if len(cfg.Addrs) < 1 || cfg.SentinelMasterName == "" {
			return nil, fmt.Errorf("sentinel backend requires sentinel addresses and a master name")
		}
		var c *goredis.Client
		op := func() (*goredis.Client, error) {
			fc := goredis.NewFailoverClient(&goredis.FailoverOptions{
				MasterName:    cfg.SentinelMasterName,
				SentinelAddrs: cfg.Addrs,
				Username:      cfg.Username,
				Password:      cfg.Password,
				DB:            cfg.DB,
				TLSConfig:     cfg.TLS,
			})
			if err := fc.Ping(ctx).Err(); err != nil {
				fc.Close()
				return nil, err
			}
			return fc, nil
		}
		retries := cfg.FailoverRetries
		if retries <= 0 {
			retries = 3
		}
		result, err := backoff.Retry(ctx, op,
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(uint(retries)),
		)
		if err != nil {
			return nil, fmt.Errorf("resolving sentinel master %q: %w", cfg.SentinelMasterName, err)
		}
		c = result
		return &Backend{writer: c}, nil

	default:
		return nil, fmt.Errorf("unknown backend kind %d", cfg.Kind)
	}
}

// Writer returns the client used for RPUSH/EXPIRE/BLPOP.
func (b *Backend) Writer() *goredis.Client { return b.writer }

// Reader returns a client suitable for read-only list inspection (LLEN),
// round-robining across configured replicas and falling back to the
// writer when none are configured.
func (b *Backend) Reader() *goredis.Client {
	if len(b.readers) == 0 {
		return b.writer
	}
	i := atomic.AddUint64(&b.nextRO, 1)
	return b.readers[i%uint64(len(b.readers))]
}

// Close releases all pooled connections.
func (b *Backend) Close() error {
	var firstErr error
	if err := b.writer.Close(); err != nil {
		firstErr = err
	}
	for _, r := range b.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
