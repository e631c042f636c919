package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"songify/internal/extractor"
)

// ChunkSize is the size of each piece relayed to the client.
const ChunkSize = 8192

// BrowserUserAgent is sent to the media host unless the extractor supplies one.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func (s *Server) HandleGetAudio(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	log := hlog.FromRequest(r).With().Str("video_id", videoID).Logger()

	if !extractor.ValidVideoID(videoID) {
		writeRelayError(w, newError(InvalidRequest, "Invalid video id", nil))
		return
	}

	if err := s.extractor.Available(); err != nil {
		log.Error().Err(err).Msg("extractor unavailable")
		writeRelayError(w, newError(DependencyMissing, extractor.ErrNotInstalled.Error(), err))
		return
	}

	stream, err := s.resolve(r.Context(), videoID)
	if err != nil {
		log.Error().Err(err).Msg("resolve failed")
		writeRelayError(w, err)
		return
	}
	log.Info().Str("ext", stream.Ext).Str("title", stream.Title).Msg("stream resolved")

	resp, err := s.openMedia(r, stream)
	if err != nil {
		log.Error().Err(err).Msg("media request failed")
		writeRelayError(w, newError(StreamingError, "", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error().Int("status", resp.StatusCode).Msg("media host rejected request")
		writeRelayError(w, newError(StreamingError, fmt.Sprintf("media host status %d", resp.StatusCode), nil))
		return
	}

	status := http.StatusOK
	h := w.Header()
	h.Set("Content-Type", stream.MimeType)
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	if resp.ContentLength >= 0 {
		h.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	if v := resp.Header.Get("Accept-Ranges"); v != "" {
		h.Set("Accept-Ranges", v)
	}
	if resp.StatusCode == http.StatusPartialContent && r.Header.Get("Range") != "" {
		status = http.StatusPartialContent
		if v := resp.Header.Get("Content-Range"); v != "" {
			h.Set("Content-Range", v)
		}
	}
	w.WriteHeader(status)

	n, err := relay(w, resp.Body)
	if err != nil {
		logStreamEnd(log, r, n, err)
		// Headers are gone; abort so a chunked response is not terminated cleanly.
		panic(http.ErrAbortHandler)
	}
	log.Info().Int64("bytes", n).Msg("stream complete")
}

// resolve maps extractor failures onto the relay's error kinds.
func (s *Server) resolve(ctx context.Context, videoID string) (*extractor.Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ResolveTimeout)
	defer cancel()

	stream, err := s.extractor.Resolve(ctx, videoID)
	switch {
	case err == nil && (stream == nil || stream.URL == ""):
		return nil, newError(ResolutionError, extractor.ErrNoAudioURL.Error(), extractor.ErrNoAudioURL)
	case err == nil:
		if stream.MimeType == "" {
			stream.MimeType = extractor.ContentType(stream.Ext)
		}
		return stream, nil
	case errors.Is(err, extractor.ErrNoAudioURL):
		return nil, newError(ResolutionError, extractor.ErrNoAudioURL.Error(), err)
	case errors.Is(err, extractor.ErrNotInstalled):
		return nil, newError(DependencyMissing, extractor.ErrNotInstalled.Error(), err)
	default:
		return nil, newError(StreamingError, "", err)
	}
}

// openMedia issues the upstream GET bound to the client's context, so a
// disconnect tears down the media connection too.
func (s *Server) openMedia(r *http.Request, stream *extractor.Stream) (*http.Response, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, stream.URL, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range stream.Header {
		if http.CanonicalHeaderKey(k) == "Accept-Encoding" {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", BrowserUserAgent)
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}
	return s.media.Do(req)
}

// relay copies body to w in ChunkSize pieces, flushing after each one.
func relay(w http.ResponseWriter, body io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, ChunkSize)
	var total int64

	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return total, err
			}
			total += int64(n)
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return total, err
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

func logStreamEnd(log zerolog.Logger, r *http.Request, n int64, err error) {
	if r.Context().Err() != nil {
		log.Info().Int64("bytes", n).Msg("client disconnected")
		return
	}
	log.Warn().Err(err).Int64("bytes", n).Msg("stream aborted")
}
