// Package extractor resolves a YouTube video id into a direct, time-limited audio
// URL without downloading the media itself.
package extractor

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
)

// FormatPreference is the ordered yt-dlp format selector: audio-only m4a, then any
// audio-only stream, then the best progressive stream.
const FormatPreference = "bestaudio[ext=m4a]/bestaudio/best"

var (
	ErrNotInstalled = errors.New("yt-dlp not installed. Install it with: pip install yt-dlp")
	ErrNoAudioURL   = errors.New("No audio stream found")
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,64}$`)

// Stream is a resolved media location.
type Stream struct {
	URL      string
	Ext      string
	MimeType string
	Title    string
	// Header holds request headers the media host expects, if the extractor reports any.
	Header http.Header
}

type Extractor interface {
	// Available reports ErrNotInstalled when the backend cannot run at all.
	Available() error
	Resolve(ctx context.Context, videoID string) (*Stream, error)
}

func ValidVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}

func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// ContentType maps a container extension to the MIME type served to the browser.
func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case "m4a", "mp4":
		return "audio/mp4"
	default:
		return "audio/mpeg"
	}
}
