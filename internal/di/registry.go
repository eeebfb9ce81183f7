package di

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/platform/config"
	pfirestore "github.com/maison-luxe/storefront/internal/platform/firestore"
	"github.com/maison-luxe/storefront/internal/repositories"
	firestoreRepo "github.com/maison-luxe/storefront/internal/repositories/firestore"
	"github.com/maison-luxe/storefront/internal/repositories/memory"
	redisRepo "github.com/maison-luxe/storefront/internal/repositories/redis"
)

const (
	firestoreProbeTimeout = 1500 * time.Millisecond
	redisProbeTimeout     = 500 * time.Millisecond
	redisKeyPrefix        = "storefront:cart"
	redisAttemptPrefix    = "storefront:attempt"
)

// cartOverlay serves carts (and health) from a different backend than the rest of the registry.
type cartOverlay struct {
	repositories.Registry
	carts  repositories.CartRepository
	health repositories.HealthRepository
}

func (o cartOverlay) Carts() repositories.CartRepository { return o.carts }

func (o cartOverlay) Health() repositories.HealthRepository { return o.health }

// backends are the shared clients opened while building the registry. The memo store
// reuses them. Either field is nil when that backend is not configured.
type backends struct {
	firestore *pfirestore.Provider
	redis     *goredis.Client
}

// buildRegistry selects repository adapters from configuration.
func (c *Container) buildRegistry(ctx context.Context, seed []domain.Discount) (repositories.Registry, backends, error) {
	cfg := c.Config
	var (
		provider *pfirestore.Provider
		client   *goredis.Client
		checks   []repositories.DependencyCheck
	)

	if cfg.Repositories.Backend == config.BackendFirestore || cfg.Repositories.CartBackend == config.BackendFirestore {
		provider = pfirestore.NewProvider(cfg.Firestore)
		c.addCloser("firestore", provider.Close)
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: firestoreProbeTimeout,
			Check:   provider.Ping,
		})
	}

	var carts repositories.CartRepository
	switch cfg.Repositories.CartBackend {
	case config.BackendRedis:
		client = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.addCloser("redis", func(context.Context) error { return client.Close() })
		repo, err := redisRepo.NewCartRepository(client,
			redisRepo.WithKeyPrefix(redisKeyPrefix),
			redisRepo.WithTTL(cfg.Redis.CartTTL),
		)
		if err != nil {
			return nil, backends{}, fmt.Errorf("build redis cart repository: %w", err)
		}
		carts = repo
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: redisProbeTimeout,
			Check:   repo.Ping,
		})
	case config.BackendMemory:
		if cfg.Repositories.Backend != config.BackendMemory {
			carts = memory.NewStore().Carts()
		}
	case config.BackendFirestore:
		if cfg.Repositories.Backend != config.BackendFirestore {
			repo, err := firestoreRepo.NewCartRepository(provider)
			if err != nil {
				return nil, backends{}, fmt.Errorf("build firestore cart repository: %w", err)
			}
			carts = repo
		}
	}

	health, err := repositories.NewProbeHealthRepository(checks)
	if err != nil {
		return nil, backends{}, fmt.Errorf("build health repository: %w", err)
	}

	var reg repositories.Registry
	switch cfg.Repositories.Backend {
	case config.BackendFirestore:
		opts := []firestoreRepo.RegistryOption{firestoreRepo.WithHealthRepository(health)}
		if carts != nil {
			opts = append(opts, firestoreRepo.WithCartRepository(carts))
		}
		fsReg, err := firestoreRepo.NewRegistry(provider, opts...)
		if err != nil {
			return nil, backends{}, fmt.Errorf("build firestore registry: %w", err)
		}
		if len(seed) > 0 {
			c.logger.Warn("discount seed ignored for firestore backend", zap.Int("codes", len(seed)))
		}
		reg = fsReg
	default:
		store := memory.NewStore(memory.WithDiscounts(seed...), memory.WithHealth(health))
		if carts != nil {
			reg = cartOverlay{Registry: store, carts: carts, health: health}
		} else {
			reg = store
		}
	}

	c.logger.Info("repositories configured",
		zap.String("backend", cfg.Repositories.Backend),
		zap.String("cartBackend", cfg.Repositories.CartBackend),
		zap.Int("healthChecks", len(checks)),
	)
	return reg, backends{firestore: provider, redis: client}, nil
}
