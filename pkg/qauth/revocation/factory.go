package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/shared/config"
	tpcache "github.com/qauthteam/qshield/third_party/cache"
	"github.com/qauthteam/qshield/third_party/database"
)

// NewStoreFromConfig builds the Store selected by cfg.Backend, opening
// the underlying connection via third_party/database or
// third_party/cache as needed.
func NewStoreFromConfig(cfg config.RevocationConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		conn, err := tpcache.NewRedisConnection(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(conn.Client())
	case "postgres":
		db, err := database.NewPostgresConnection(cfg.Database)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db)
	default:
		return nil, qerr.New(qerr.KindInvalidInput, fmt.Sprintf("unknown revocation backend %q", cfg.Backend))
	}
}

// NewCheckerFromConfig builds a Store per cfg.Backend and wraps it in a
// Checker, then runs one synchronous RefreshFilter so the Bloom filter
// is populated before the Checker serves traffic.
func NewCheckerFromConfig(ctx context.Context, cfg config.RevocationConfig) (*Checker, error) {
	store, err := NewStoreFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	checker := NewChecker(store, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	if err := checker.RefreshFilter(ctx, cfg.BloomFPR); err != nil {
		return nil, qerr.Wrap(qerr.KindRevocation, "initial bloom filter refresh failed", err)
	}
	return checker, nil
}
