package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songify/internal/config"
	"songify/internal/extractor"
	"songify/internal/provider"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for _, k := range []string{
		"HOST", "PORT", "YOUTUBE_API_KEY", "YOUTUBE_SEARCH_URL", "EXTRACTOR",
		"REDIS_URL", "SEARCH_CACHE_TTL", "LOG_LEVEL", "LOG_FORMAT", "SONGIFY_CONFIG",
	} {
		t.Setenv(k, "")
	}
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestSearchCommand(t *testing.T) {
	var gotQuery string
	yt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":{"videoId":"fJ9rUzIMcZQ"},"snippet":{"title":"Bohemian Rhapsody","channelTitle":"Queen Official","thumbnails":{"high":{"url":"https://i.ytimg.com/vi/fJ9rUzIMcZQ/hqdefault.jpg"}}}}]}`))
	}))
	defer yt.Close()

	setEnv(t, map[string]string{
		"YOUTUBE_API_KEY":    "test-key",
		"YOUTUBE_SEARCH_URL": yt.URL,
		"LOG_FORMAT":         "json",
		"LOG_LEVEL":          "error",
	})

	stdout, _, err := execute(t, "search", "bohemian rhapsody")
	require.NoError(t, err)
	assert.Equal(t, "bohemian rhapsody music", gotQuery)

	var items []provider.SearchResultItem
	require.NoError(t, json.Unmarshal([]byte(stdout), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "fJ9rUzIMcZQ", items[0].VideoID)
	assert.Equal(t, "Queen Official", items[0].Channel)
}

func TestSearchCommand_UpstreamError(t *testing.T) {
	yt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
	}))
	defer yt.Close()

	setEnv(t, map[string]string{"YOUTUBE_SEARCH_URL": yt.URL, "LOG_FORMAT": "json"})

	_, _, err := execute(t, "search", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestResolveCommand_InvalidID(t *testing.T) {
	setEnv(t, map[string]string{"LOG_FORMAT": "json"})

	_, _, err := execute(t, "resolve", "no")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid video id")
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "songify.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 7000\nlog_format: json\n"), 0o644))
	setEnv(t, nil)

	cmd := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, serve.ParseFlags([]string{"--config", path, "--port", "9000", "--host", "0.0.0.0"}))

	cfg, _, err := loadConfig(serve)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, config.LogFormatJSON, cfg.LogFormat)
}

func TestLoadConfig_Invalid(t *testing.T) {
	setEnv(t, map[string]string{"EXTRACTOR": "vlc"})

	_, _, err := execute(t, "search", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown extractor")
}

func TestBuildProvider(t *testing.T) {
	cfg := config.Default()

	t.Run("cache disabled", func(t *testing.T) {
		cfg := cfg
		cfg.SearchCacheTTL = 0
		p, closeFn := buildProvider(context.Background(), cfg, zerolog.Nop())
		defer closeFn()
		assert.IsType(t, &provider.YouTubeClient{}, p)
	})

	t.Run("in-memory cache when redis is unreachable", func(t *testing.T) {
		cfg := cfg
		cfg.RedisURL = "redis://127.0.0.1:1/0"
		p, closeFn := buildProvider(context.Background(), cfg, zerolog.Nop())
		defer closeFn()
		assert.IsType(t, &provider.CachedProvider{}, p)
	})

	t.Run("redis cache", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := cfg
		cfg.RedisURL = "redis://" + mr.Addr()
		rdb := connectRedis(context.Background(), cfg.RedisURL, zerolog.Nop())
		require.NotNil(t, rdb)
		_ = rdb.Close()
	})
}

func TestBuildExtractor(t *testing.T) {
	cfg := config.Default()
	assert.IsType(t, &extractor.YTDLP{}, buildExtractor(cfg))

	cfg.Extractor = config.ExtractorNative
	assert.IsType(t, &extractor.Native{}, buildExtractor(cfg))
}
