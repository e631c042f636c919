package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"songify/internal/config"
	"songify/internal/extractor"
	"songify/internal/provider"
)

// buildProvider returns the YouTube client, wrapped in the search cache when a
// TTL is configured. Redis is optional: when it is unset or unreachable the
// cache runs in-memory only.
func buildProvider(ctx context.Context, cfg config.Config, log zerolog.Logger) (provider.Provider, func()) {
	yt := provider.NewYouTubeClient(cfg.YouTubeAPIKey, cfg.YouTubeSearchURL, cfg.SearchTimeout)
	if cfg.SearchCacheTTL <= 0 {
		return yt, func() {}
	}

	rdb := connectRedis(ctx, cfg.RedisURL, log)
	closeFn := func() {}
	if rdb != nil {
		closeFn = func() { _ = rdb.Close() }
	}
	return provider.NewCachedProvider(yt, rdb, cfg.SearchCacheTTL, cfg.SearchCacheMaxEntries, log), closeFn
}

func connectRedis(ctx context.Context, url string, log zerolog.Logger) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn().Err(err).Msg("invalid REDIS_URL, search cache is in-memory only")
		return nil
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, search cache is in-memory only")
		_ = rdb.Close()
		return nil
	}
	log.Info().Str("addr", opt.Addr).Msg("redis search cache enabled")
	return rdb
}

func buildExtractor(cfg config.Config) extractor.Extractor {
	if cfg.Extractor == config.ExtractorNative {
		return extractor.NewNative(&http.Client{Timeout: cfg.ResolveTimeout})
	}
	return extractor.NewYTDLP(cfg.YTDLPPath)
}
