package client

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/credentials/filestore"
	"github.com/jrsteele09/go-auth-session/credentials/redisstore"
	credentialsrepofake "github.com/jrsteele09/go-auth-session/credentials/repofake"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewStore opens the credential store backend named by cfg. The returned close
// func releases any connection and is never nil.
func NewStore(ctx context.Context, cfg config.StoreConfig) (credentials.Store, func() error, error) {
	noop := func() error { return nil }

	switch backend := cfg.GetCredentialStore(); backend {
	case config.StoreMemory:
		log.Debug().Str("backend", backend).Msg("Using in-memory credential store")
		return credentialsrepofake.NewFakeCredentialStore(), noop, nil

	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("[client.NewStore] connecting to redis at %s: %w", cfg.GetRedisAddr(), err)
		}
		store, err := redisstore.New(rdb, cfg.GetRedisPrefix())
		if err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("[client.NewStore] %w", err)
		}
		log.Debug().Str("backend", backend).Str("addr", cfg.GetRedisAddr()).Msg("Using redis credential store")
		return store, rdb.Close, nil

	default:
		var options []filestore.Option
		if key := cfg.GetCredentialsKey(); key != "" {
			options = append(options, filestore.WithPassphrase(key))
		}
		store, err := filestore.New(cfg.GetCredentialsFile(), options...)
		if err != nil {
			return nil, noop, fmt.Errorf("[client.NewStore] %w", err)
		}
		log.Debug().Str("backend", backend).Str("path", store.Path()).Msg("Using file credential store")
		return store, noop, nil
	}
}
