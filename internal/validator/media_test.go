package validator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tunewave/tunewave/internal/domain"
)

func newTestProber() *StreamProber {
	return NewStreamProber("tunewave-test/1.0")
}

func audioHandler(contentType string, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

func TestCheckCompatibilityIcyHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"icy-metaint", "icy-metaint", "16000"},
		{"icy-name", "icy-name", "Test FM"},
		{"icy-br", "icy-br", "128"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set(tt.header, tt.value)
				w.Header().Set("Content-Type", "application/octet-stream")
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			res := newTestProber().CheckCompatibility(context.Background(), srv.URL, 5*time.Second)
			if !res.IsValid {
				t.Errorf("expected valid for %s header, got %+v", tt.header, res.Err)
			}
		})
	}
}

func TestCheckCompatibilityContentTypes(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		wantValid   bool
	}{
		{"audio/mpeg", "audio/mpeg", true},
		{"audio/aac", "audio/aac", true},
		{"audio with charset", "audio/mpeg; charset=utf-8", true},
		{"ogg", "application/ogg", true},
		{"hls manifest type", "application/vnd.apple.mpegurl", true},
		{"mpegts", "video/mp2t", true},
		{"html page", "text/html", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(audioHandler(tt.contentType, []byte("<html>not a stream</html>")))
			defer srv.Close()

			res := newTestProber().CheckCompatibility(context.Background(), srv.URL, 5*time.Second)
			if res.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v (err %+v)", res.IsValid, tt.wantValid, res.Err)
			}
			if !tt.wantValid {
				if res.Err == nil || res.Err.Kind != domain.ErrorKindAudioCompat {
					t.Errorf("expected audio_compatibility error, got %+v", res.Err)
				}
				if res.Err != nil && res.Err.Retryable {
					t.Error("format errors are not retryable")
				}
			}
		})
	}
}

func TestCheckCompatibilitySniffsMagicBytes(t *testing.T) {
	mp3Frame := append([]byte{0xFF, 0xFB, 0x90, 0x00}, make([]byte, 600)...)

	tests := []struct {
		name      string
		body      []byte
		wantValid bool
	}{
		{"id3 tag", append([]byte("ID3\x04\x00"), make([]byte, 600)...), true},
		{"ogg page", append([]byte("OggS\x00"), make([]byte, 600)...), true},
		{"flac marker", append([]byte("fLaC\x00"), make([]byte, 600)...), true},
		{"mp3 frame sync", mp3Frame, true},
		{"plain text", append([]byte("hello world "), make([]byte, 600)...), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(audioHandler("application/octet-stream", tt.body))
			defer srv.Close()

			res := newTestProber().CheckCompatibility(context.Background(), srv.URL, 5*time.Second)
			if res.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v (err %+v)", res.IsValid, tt.wantValid, res.Err)
			}
		})
	}
}

func TestCheckCompatibilityResolvesPlaylist(t *testing.T) {
	stream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("icy-name", "Playlist Target")
		w.WriteHeader(http.StatusOK)
	}))
	defer stream.Close()

	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"pls", "audio/x-scpls", "[playlist]\nNumberOfEntries=1\nFile1=" + stream.URL + "\nTitle1=Test\n"},
		{"m3u", "audio/x-mpegurl", "#EXTM3U\n#EXTINF:-1,Test\n" + stream.URL + "\n"},
		{"bare m3u", "audio/mpegurl", stream.URL + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(audioHandler(tt.contentType, []byte(tt.body)))
			defer srv.Close()

			res := newTestProber().CheckCompatibility(context.Background(), srv.URL, 5*time.Second)
			if !res.IsValid {
				t.Errorf("expected playlist to resolve to valid stream, got %+v", res.Err)
			}
		})
	}
}

func TestCheckCompatibilityPlaylistChainRejected(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/inner.pls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/x-scpls")
		w.Write([]byte("[playlist]\nFile1=http://127.0.0.1:1/never\n"))
	})
	mux.HandleFunc("/outer.pls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/x-scpls")
		w.Write([]byte("[playlist]\nFile1=" + srv.URL + "/inner.pls\n"))
	})

	res := newTestProber().CheckCompatibility(context.Background(), srv.URL+"/outer.pls", 5*time.Second)
	if res.IsValid {
		t.Fatal("nested playlists must be rejected")
	}
	if res.Err.Kind != domain.ErrorKindAudioCompat {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, domain.ErrorKindAudioCompat)
	}
}

func TestCheckCompatibilityEmptyPlaylist(t *testing.T) {
	srv := httptest.NewServer(audioHandler("audio/x-scpls", []byte("[playlist]\nNumberOfEntries=0\n")))
	defer srv.Close()

	res := newTestProber().CheckCompatibility(context.Background(), srv.URL, 5*time.Second)
	if res.IsValid {
		t.Fatal("expected invalid result")
	}
	if res.Err.Kind != domain.ErrorKindAudioCompat {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, domain.ErrorKindAudioCompat)
	}
}

func TestCheckCompatibilityHLSManifest(t *testing.T) {
	manifest := "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\nsegment0.ts\n"
	srv := httptest.NewServer(audioHandler("application/x-mpegurl", []byte(manifest)))
	defer srv.Close()

	res := newTestProber().CheckCompatibility(context.Background(), srv.URL, 5*time.Second)
	if !res.IsValid {
		t.Errorf("HLS manifests are playable, got %+v", res.Err)
	}
}

func TestCheckCompatibilityEmptyBody(t *testing.T) {
	srv := httptest.NewServer(audioHandler("application/octet-stream", nil))
	defer srv.Close()

	res := newTestProber().CheckCompatibility(context.Background(), srv.URL, 5*time.Second)
	if res.IsValid {
		t.Fatal("expected invalid result for empty stream")
	}
	if res.Err.Kind != domain.ErrorKindAudioCompat {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, domain.ErrorKindAudioCompat)
	}
}

func TestCheckCompatibilityStalledStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	res := newTestProber().CheckCompatibility(context.Background(), srv.URL, 100*time.Millisecond)
	if res.IsValid {
		t.Fatal("expected invalid result")
	}
	if res.Err.Kind != domain.ErrorKindTimeout {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, domain.ErrorKindTimeout)
	}
}

func TestCheckCompatibilityHTTPErrorDuringLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	res := newTestProber().CheckCompatibility(context.Background(), srv.URL, 5*time.Second)
	if res.IsValid {
		t.Fatal("expected invalid result")
	}
	if res.Err.Kind != domain.ErrorKindNetwork {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, domain.ErrorKindNetwork)
	}
	if res.Err.HTTPStatus != http.StatusGone {
		t.Errorf("HTTPStatus = %d, want %d", res.Err.HTTPStatus, http.StatusGone)
	}
}

func TestFirstPlaylistEntry(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"pls", "[playlist]\nNumberOfEntries=1\nFile1=http://a.example/s\nTitle1=A\n", "http://a.example/s"},
		{"m3u with comments", "#EXTM3U\n#EXTINF:-1,A\nhttps://b.example/s\n", "https://b.example/s"},
		{"windows line endings", "[playlist]\r\nFile1=http://c.example/s\r\n", "http://c.example/s"},
		{"no entries", "[playlist]\nNumberOfEntries=0\n", ""},
		{"relative entry skipped", "#EXTM3U\nsegment.ts\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstPlaylistEntry([]byte(tt.data)); got != tt.want {
				t.Errorf("firstPlaylistEntry = %q, want %q", got, tt.want)
			}
		})
	}
}
