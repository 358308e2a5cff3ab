package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/version"
)

var ErrGeoLookupFailed = errors.New("geolocation lookup failed")

// GeoLocator resolves an IP address to a coarse location. Callers must
// tolerate a constant or empty answer.
type GeoLocator interface {
	Lookup(ctx context.Context, ip string) (*models.Geolocation, error)
}

// StaticLocator answers every lookup with the same location.
type StaticLocator struct {
	Location models.Geolocation
}

// NewStaticLocator returns a locator that places every address in country.
func NewStaticLocator(country string) *StaticLocator {
	return &StaticLocator{Location: models.Geolocation{Country: strings.ToUpper(country)}}
}

func (l *StaticLocator) Lookup(ctx context.Context, ip string) (*models.Geolocation, error) {
	g := l.Location
	return &g, nil
}

// IPAPILocator queries an ip-api.com compatible JSON endpoint behind a
// circuit breaker. Private and loopback addresses are never sent out and
// resolve to the fallback country.
type IPAPILocator struct {
	baseURL  string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[*models.Geolocation]
	fallback models.Geolocation
}

type ipAPIResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	CountryCode string  `json:"countryCode"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

func NewIPAPILocator(cfg config.GeoConfig) *IPAPILocator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "geolocation",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	}
	return &IPAPILocator{
		baseURL:  strings.TrimRight(cfg.ProviderURL, "/"),
		client:   &http.Client{Timeout: timeout},
		breaker:  gobreaker.NewCircuitBreaker[*models.Geolocation](settings),
		fallback: models.Geolocation{Country: strings.ToUpper(cfg.DefaultCountry)},
	}
}

func (l *IPAPILocator) Lookup(ctx context.Context, ip string) (*models.Geolocation, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil || isPrivateIP(parsed) {
		g := l.fallback
		return &g, nil
	}
	return l.breaker.Execute(func() (*models.Geolocation, error) {
		return l.fetch(ctx, parsed.String())
	})
}

func (l *IPAPILocator) fetch(ctx context.Context, ip string) (*models.Geolocation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/"+ip, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrGeoLookupFailed, resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoLookupFailed, err)
	}
	if body.Status != "" && body.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrGeoLookupFailed, body.Message)
	}
	return &models.Geolocation{
		Latitude:  body.Lat,
		Longitude: body.Lon,
		Country:   strings.ToUpper(body.CountryCode),
		City:      body.City,
	}, nil
}

// NewGeoLocator picks the remote locator when a provider URL is configured.
func NewGeoLocator(cfg config.GeoConfig) GeoLocator {
	if cfg.ProviderURL == "" {
		return NewStaticLocator(cfg.DefaultCountry)
	}
	return NewIPAPILocator(cfg)
}
