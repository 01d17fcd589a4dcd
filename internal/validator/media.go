package validator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/tunewave/tunewave/internal/domain"
)

// MediaChecker is the local playback capability boundary: it decides
// whether a player could begin playback of a URL, independent of
// network-layer correctness. Compatibility failures are deterministic
// properties of the stream, so none of its errors are retryable.
type MediaChecker interface {
	CheckCompatibility(ctx context.Context, url string, timeout time.Duration) CheckResult
}

const (
	// sniffBytes is how much of the stream body is read to identify the
	// format when headers alone are inconclusive.
	sniffBytes = 512

	// maxPlaylistBytes bounds how much of a playlist payload is read.
	maxPlaylistBytes = 64 * 1024
)

// StreamProber implements MediaChecker by opening the stream the way a
// player would and inspecting headers and leading bytes. Playlist
// payloads (PLS/M3U) are resolved one level to the stream they point at.
type StreamProber struct {
	client    *http.Client
	userAgent string
}

// NewStreamProber creates a stream-probing media checker.
func NewStreamProber(userAgent string) *StreamProber {
	return &StreamProber{
		client:    &http.Client{},
		userAgent: userAgent,
	}
}

// CheckCompatibility races stream identification against the timeout.
// The connection is closed on every exit path so no background transfer
// outlives the check.
func (p *StreamProber) CheckCompatibility(ctx context.Context, rawURL string, timeout time.Duration) CheckResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return p.probe(ctx, rawURL, 0)
}

func (p *StreamProber) probe(ctx context.Context, rawURL string, depth int) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return CheckResult{Err: &domain.ValidationError{
			Kind:      domain.ErrorKindNetwork,
			Message:   fmt.Sprintf("invalid stream URL: %v", err),
			Retryable: false,
		}}
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Icy-MetaData", "1")

	resp, err := p.client.Do(req)
	if err != nil {
		// Shoutcast v1 servers answer "ICY 200 OK", which net/http rejects
		// as a malformed status line. A player accepts those streams.
		if strings.Contains(err.Error(), "ICY") {
			return CheckResult{IsValid: true}
		}
		return CheckResult{Err: classifyTransportError(err, false)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CheckResult{Err: &domain.ValidationError{
			Kind:       domain.ErrorKindNetwork,
			Message:    fmt.Sprintf("HTTP %d during stream load", resp.StatusCode),
			HTTPStatus: resp.StatusCode,
			Retryable:  false,
		}}
	}

	// ICY headers identify a shoutcast/icecast stream outright.
	if resp.Header.Get("icy-metaint") != "" || resp.Header.Get("icy-name") != "" || resp.Header.Get("icy-br") != "" {
		return CheckResult{IsValid: true}
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType := ""
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			mediaType = mt
		}
	}

	if isPlaylistType(mediaType, rawURL) {
		if depth >= 1 {
			return CheckResult{Err: &domain.ValidationError{
				Kind:      domain.ErrorKindAudioCompat,
				Message:   "playlist points at another playlist",
				Retryable: false,
			}}
		}
		return p.resolvePlaylist(ctx, resp.Body, depth)
	}

	if isAudioType(mediaType) {
		return CheckResult{IsValid: true}
	}

	// Headers are inconclusive; sniff the leading bytes.
	buf := make([]byte, sniffBytes)
	n, readErr := io.ReadFull(resp.Body, buf)
	if n == 0 && readErr != nil {
		if isTimeout(readErr) || ctx.Err() != nil {
			return CheckResult{Err: &domain.ValidationError{
				Kind:      domain.ErrorKindTimeout,
				Message:   "stream produced no data before the deadline",
				Retryable: false,
			}}
		}
		if readErr == io.EOF {
			return CheckResult{Err: &domain.ValidationError{
				Kind:      domain.ErrorKindAudioCompat,
				Message:   "stream contains no data",
				Retryable: false,
			}}
		}
		return CheckResult{Err: &domain.ValidationError{
			Kind:      domain.ErrorKindNetwork,
			Message:   fmt.Sprintf("stream read failed: %v", readErr),
			Retryable: false,
		}}
	}
	buf = buf[:n]

	if sniffAudio(buf) {
		return CheckResult{IsValid: true}
	}

	// Some playlists arrive with a generic content type.
	if looksLikePlaylist(buf) {
		if depth >= 1 {
			return CheckResult{Err: &domain.ValidationError{
				Kind:      domain.ErrorKindAudioCompat,
				Message:   "playlist points at another playlist",
				Retryable: false,
			}}
		}
		rest, _ := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
		return p.resolvePlaylistData(ctx, append(buf, rest...), depth)
	}

	return CheckResult{Err: &domain.ValidationError{
		Kind:      domain.ErrorKindAudioCompat,
		Message:   fmt.Sprintf("unrecognized stream format (content-type %q)", contentType),
		Retryable: false,
	}}
}

func (p *StreamProber) resolvePlaylist(ctx context.Context, body io.Reader, depth int) CheckResult {
	data, err := io.ReadAll(io.LimitReader(body, maxPlaylistBytes))
	if err != nil {
		return CheckResult{Err: &domain.ValidationError{
			Kind:      domain.ErrorKindNetwork,
			Message:   fmt.Sprintf("playlist read failed: %v", err),
			Retryable: false,
		}}
	}
	return p.resolvePlaylistData(ctx, data, depth)
}

func (p *StreamProber) resolvePlaylistData(ctx context.Context, data []byte, depth int) CheckResult {
	// HLS manifests are playable directly; do not chase segment URIs.
	if bytes.Contains(data, []byte("#EXT-X-")) {
		return CheckResult{IsValid: true}
	}

	target := firstPlaylistEntry(data)
	if target == "" {
		return CheckResult{Err: &domain.ValidationError{
			Kind:      domain.ErrorKindAudioCompat,
			Message:   "playlist contains no stream URL",
			Retryable: false,
		}}
	}
	return p.probe(ctx, target, depth+1)
}

// firstPlaylistEntry extracts the first stream URL from PLS or M3U data.
func firstPlaylistEntry(data []byte) string {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// PLS entries look like File1=http://...
		if strings.HasPrefix(line, "File") && strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			line = strings.TrimSpace(parts[1])
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			return line
		}
	}
	return ""
}

func isPlaylistType(mediaType, rawURL string) bool {
	switch mediaType {
	case "audio/x-scpls", "application/pls+xml",
		"audio/mpegurl", "audio/x-mpegurl",
		"application/mpegurl", "application/x-mpegurl":
		return true
	}
	lower := strings.ToLower(rawURL)
	return strings.HasSuffix(lower, ".pls") || strings.HasSuffix(lower, ".m3u")
}

func isAudioType(mediaType string) bool {
	if strings.HasPrefix(mediaType, "audio/") {
		return true
	}
	switch mediaType {
	case "application/ogg", "application/vnd.apple.mpegurl", "video/mp2t":
		return true
	}
	return false
}

// sniffAudio recognizes the magic bytes of common stream payloads: ID3
// tags, MP3/ADTS frame sync, Ogg, and FLAC.
func sniffAudio(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}
	if bytes.HasPrefix(buf, []byte("ID3")) {
		return true
	}
	if bytes.HasPrefix(buf, []byte("OggS")) {
		return true
	}
	if bytes.HasPrefix(buf, []byte("fLaC")) {
		return true
	}
	// MPEG audio / ADTS frame sync: 11 set bits.
	if buf[0] == 0xFF && buf[1]&0xE0 == 0xE0 {
		return true
	}
	return false
}

func looksLikePlaylist(buf []byte) bool {
	trimmed := bytes.TrimSpace(buf)
	return bytes.HasPrefix(trimmed, []byte("#EXTM3U")) ||
		bytes.HasPrefix(trimmed, []byte("[playlist]")) ||
		bytes.Contains(trimmed, []byte("File1="))
}
