// Package relay exposes the search relay and the audio streaming proxy over HTTP.
package relay

import (
	"embed"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"songify/internal/extractor"
	"songify/internal/provider"
)

//go:embed templates/*.gohtml
var tplFS embed.FS

//go:embed all:static
var staticFS embed.FS

// Options tunes the HTTP surface. Zero values fall back to the defaults below.
type Options struct {
	CORSAllowedOrigin    string
	SearchTimeout        time.Duration
	ResolveTimeout       time.Duration
	StreamConnectTimeout time.Duration
	AudioRPS             float64
	AudioBurst           int
}

const (
	defaultSearchTimeout  = 10 * time.Second
	defaultResolveTimeout = 60 * time.Second
	defaultConnectTimeout = 60 * time.Second
)

type Server struct {
	provider  provider.Provider
	extractor extractor.Extractor
	media     *http.Client
	limiter   *ipLimiter
	seeks     *ipLimiter
	tpl       *template.Template
	log       zerolog.Logger
	opts      Options
}

func NewServer(p provider.Provider, ex extractor.Extractor, log zerolog.Logger, opts Options) *Server {
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = defaultSearchTimeout
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = defaultResolveTimeout
	}
	if opts.StreamConnectTimeout <= 0 {
		opts.StreamConnectTimeout = defaultConnectTimeout
	}

	s := &Server{
		provider:  p,
		extractor: ex,
		media:     newMediaClient(opts.StreamConnectTimeout),
		tpl:       template.Must(template.ParseFS(tplFS, "templates/*.gohtml")),
		log:       log,
		opts:      opts,
	}
	if opts.AudioRPS > 0 {
		s.limiter = newIPLimiter(opts.AudioRPS, opts.AudioBurst)
		s.seeks = newIPLimiter(opts.AudioRPS*seekAllowance, opts.AudioBurst*seekAllowance)
	}
	return s
}

// newMediaClient has no overall Timeout: a stream lasts as long as the track.
// Only connecting and waiting for response headers are bounded.
func newMediaClient(connect time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connect,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   connect,
			ResponseHeaderTimeout: connect,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.opts.CORSAllowedOrigin))

	r.Get("/health", s.HandleHealth)
	r.Get("/static/*", s.HandleStatic)

	// Audio streams are not bounded by a request timeout.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.SearchTimeout + 5*time.Second))
		r.Get("/", s.HandleHome)
		r.Post("/search", s.HandleSearch)
	})

	r.With(rateLimitMiddleware(s.limiter, s.seeks)).Get("/get-audio/{videoID}", s.HandleGetAudio)

	return r
}
