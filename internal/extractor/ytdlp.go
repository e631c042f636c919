package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strings"

	"github.com/lrstanley/go-ytdlp"
)

// YTDLP resolves audio URLs by running the yt-dlp binary in metadata-only mode.
type YTDLP struct {
	path     string
	lookPath func(string) (string, error)
}

func NewYTDLP(path string) *YTDLP {
	if path == "" {
		path = "yt-dlp"
	}
	return &YTDLP{path: path, lookPath: exec.LookPath}
}

func (y *YTDLP) Available() error {
	if _, err := y.lookPath(y.path); err != nil {
		return fmt.Errorf("%w (%s: %v)", ErrNotInstalled, y.path, err)
	}
	return nil
}

func (y *YTDLP) Resolve(ctx context.Context, videoID string) (*Stream, error) {
	exe, err := y.lookPath(y.path)
	if err != nil {
		return nil, fmt.Errorf("%w (%s: %v)", ErrNotInstalled, y.path, err)
	}

	res, err := ytdlp.New().
		SetExecutable(exe).
		Format(FormatPreference).
		DumpSingleJSON().
		SkipDownload().
		NoWarnings().
		NoPlaylist().
		Run(ctx, WatchURL(videoID))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("yt-dlp: %w", ctx.Err())
		}
		stderr := ""
		if res != nil {
			stderr = strings.TrimSpace(res.Stderr)
		}
		if stderr != "" {
			return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, stderr)
		}
		return nil, fmt.Errorf("yt-dlp failed: %w", err)
	}

	return parseInfo([]byte(res.Stdout))
}

// ytdlpInfo mirrors the fields of yt-dlp --dump-single-json output we care about.
type ytdlpInfo struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	URL         string            `json:"url"`
	Ext         string            `json:"ext"`
	ACodec      string            `json:"acodec"`
	FormatID    string            `json:"format_id"`
	HTTPHeaders map[string]string `json:"http_headers"`
}

func parseInfo(raw []byte) (*Stream, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed parsing yt-dlp JSON: %w", err)
	}
	if strings.TrimSpace(info.URL) == "" {
		return nil, ErrNoAudioURL
	}

	var header http.Header
	if len(info.HTTPHeaders) > 0 {
		header = make(http.Header, len(info.HTTPHeaders))
		for k, v := range info.HTTPHeaders {
			header.Set(k, v)
		}
	}

	return &Stream{
		URL:      info.URL,
		Ext:      info.Ext,
		MimeType: ContentType(info.Ext),
		Title:    info.Title,
		Header:   header,
	}, nil
}
