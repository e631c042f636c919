package extractor

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// Native resolves audio URLs in-process with kkdai/youtube. It needs no external
// binary, so it is always available.
type Native struct {
	client *youtube.Client
}

func NewNative(httpClient *http.Client) *Native {
	return &Native{client: &youtube.Client{HTTPClient: httpClient}}
}

func (n *Native) Available() error { return nil }

func (n *Native) Resolve(ctx context.Context, videoID string) (*Stream, error) {
	video, err := n.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("fetch video %s: %w", videoID, err)
	}

	format := pickFormat(video.Formats)
	if format == nil {
		return nil, ErrNoAudioURL
	}

	url, err := n.client.GetStreamURLContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("stream url for itag %d: %w", format.ItagNo, err)
	}
	if url == "" {
		return nil, ErrNoAudioURL
	}

	ext := extFromMime(format.MimeType)
	return &Stream{
		URL:      url,
		Ext:      ext,
		MimeType: ContentType(ext),
		Title:    video.Title,
	}, nil
}

// pickFormat applies the same preference as FormatPreference: audio/mp4 first, then
// any other audio-only format, then any format carrying audio. Within a tier the
// highest bitrate wins.
func pickFormat(formats youtube.FormatList) *youtube.Format {
	tiers := []func(f *youtube.Format) bool{
		func(f *youtube.Format) bool { return strings.HasPrefix(f.MimeType, "audio/mp4") },
		func(f *youtube.Format) bool { return strings.HasPrefix(f.MimeType, "audio/") },
		func(f *youtube.Format) bool { return f.AudioChannels > 0 },
	}

	for _, match := range tiers {
		var best *youtube.Format
		for i := range formats {
			f := &formats[i]
			if !match(f) {
				continue
			}
			if best == nil || f.Bitrate > best.Bitrate {
				best = f
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}

func extFromMime(mime string) string {
	base := strings.TrimSpace(strings.SplitN(mime, ";", 2)[0])
	switch base {
	case "audio/mp4":
		return "m4a"
	case "audio/webm":
		return "webm"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	case "audio/mpeg":
		return "mp3"
	}
	if i := strings.IndexByte(base, '/'); i >= 0 {
		return base[i+1:]
	}
	return base
}
