package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tunewave/tunewave/internal/domain"
)

// Client is the station directory boundary. Implementations return
// domain.ErrStationNotFound when a UUID does not exist and
// domain.ErrNoDirectoryServers when no configured server could answer.
type Client interface {
	// Search returns stations matching the query, ordered by the
	// directory's relevance.
	Search(ctx context.Context, q SearchQuery) ([]domain.Station, error)

	// TopStations returns the most-voted stations.
	TopStations(ctx context.Context, limit int) ([]domain.Station, error)

	// StationByUUID fetches a single station record.
	StationByUUID(ctx context.Context, uuid domain.StationUUID) (*domain.Station, error)

	// CountClick reports a play to the directory so station popularity
	// stays meaningful. Best-effort; callers may ignore the error.
	CountClick(ctx context.Context, uuid domain.StationUUID) error
}

// SearchQuery holds the supported directory search parameters. Zero-value
// fields are omitted from the request.
type SearchQuery struct {
	Name        string
	Tag         string
	Country     string
	CountryCode string
	Language    string
	Limit       int
	Offset      int
}

// Config for creating a directory client.
type Config struct {
	Servers   []string      // Tried in order; at least one is required.
	Timeout   time.Duration // Optional, defaults to 10 seconds.
	UserAgent string        // Optional.
}

// HTTPClient implements Client against the radio-browser API. Every call
// walks the configured servers in order and returns the first success;
// a server that answers with an HTTP error or malformed payload counts
// as failed and the next one is tried.
type HTTPClient struct {
	servers    []string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates a directory client.
func NewHTTPClient(cfg Config, logger *slog.Logger) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "tunewave/1.0"
	}

	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, strings.TrimRight(s, "/"))
	}

	return &HTTPClient{
		servers:   servers,
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// stationDTO mirrors the radio-browser station JSON.
type stationDTO struct {
	StationUUID string `json:"stationuuid"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	URLResolved string `json:"url_resolved"`
	Homepage    string `json:"homepage"`
	Favicon     string `json:"favicon"`
	Tags        string `json:"tags"`
	Country     string `json:"country"`
	CountryCode string `json:"countrycode"`
	Language    string `json:"language"`
	Codec       string `json:"codec"`
	Bitrate     int    `json:"bitrate"`
	Votes       int    `json:"votes"`
}

func (d stationDTO) toDomain() domain.Station {
	var tags []string
	if d.Tags != "" {
		tags = strings.Split(d.Tags, ",")
	}
	return domain.Station{
		UUID:        domain.StationUUID(d.StationUUID),
		Name:        strings.TrimSpace(d.Name),
		StreamURL:   d.URL,
		ResolvedURL: d.URLResolved,
		Homepage:    d.Homepage,
		Favicon:     d.Favicon,
		Tags:        tags,
		Country:     d.Country,
		CountryCode: d.CountryCode,
		Language:    d.Language,
		Codec:       d.Codec,
		Bitrate:     d.Bitrate,
		Votes:       d.Votes,
	}
}

// Search implements Client.
func (c *HTTPClient) Search(ctx context.Context, q SearchQuery) ([]domain.Station, error) {
	params := url.Values{}
	if q.Name != "" {
		params.Set("name", q.Name)
	}
	if q.Tag != "" {
		params.Set("tag", q.Tag)
	}
	if q.Country != "" {
		params.Set("country", q.Country)
	}
	if q.CountryCode != "" {
		params.Set("countrycode", q.CountryCode)
	}
	if q.Language != "" {
		params.Set("language", q.Language)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	params.Set("hidebroken", "true")

	return c.fetchStations(ctx, "/json/stations/search?"+params.Encode())
}

// TopStations implements Client.
func (c *HTTPClient) TopStations(ctx context.Context, limit int) ([]domain.Station, error) {
	if limit <= 0 {
		limit = 25
	}
	return c.fetchStations(ctx, fmt.Sprintf("/json/stations/topvote/%d?hidebroken=true", limit))
}

// StationByUUID implements Client.
func (c *HTTPClient) StationByUUID(ctx context.Context, uuid domain.StationUUID) (*domain.Station, error) {
	stations, err := c.fetchStations(ctx, "/json/stations/byuuid/"+url.PathEscape(uuid.String()))
	if err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, domain.ErrStationNotFound
	}
	return &stations[0], nil
}

// CountClick implements Client.
func (c *HTTPClient) CountClick(ctx context.Context, uuid domain.StationUUID) error {
	_, err := c.get(ctx, "/json/url/"+url.PathEscape(uuid.String()))
	return err
}

func (c *HTTPClient) fetchStations(ctx context.Context, path string) ([]domain.Station, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var dtos []stationDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}

	stations := make([]domain.Station, 0, len(dtos))
	for _, dto := range dtos {
		// Records without a UUID or stream URL are unusable.
		if dto.StationUUID == "" || dto.URL == "" {
			continue
		}
		stations = append(stations, dto.toDomain())
	}
	return stations, nil
}

// get walks the server list in order and returns the first successful body.
func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	if len(c.servers) == 0 {
		return nil, domain.ErrNoDirectoryServers
	}

	var lastErr error
	for _, server := range c.servers {
		body, err := c.getFrom(ctx, server, path)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("directory server failed, trying next", "server", server, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: last error: %v", domain.ErrNoDirectoryServers, lastErr)
}

func (c *HTTPClient) getFrom(ctx context.Context, server, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory error (status %d): %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
