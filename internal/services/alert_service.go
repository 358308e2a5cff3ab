package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	neturl "net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/containrrr/shoutrrr"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/metrics"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/store"
	"github.com/Wikid82/warden/internal/util"
	"github.com/Wikid82/warden/internal/version"
)

var ErrAlertServiceClosed = errors.New("alert service closed")

type alertJob struct {
	provider models.AlertProvider
	event    models.SecurityEvent
}

// AlertService fans high-severity events out to the enabled alert providers.
// Deliveries run on a fixed pool of workers behind a bounded queue; when the
// queue is full the alert is dropped and counted.
type AlertService struct {
	providers store.AlertProviderRepository
	limiter   *rate.Limiter
	client    *http.Client
	// send delivers a message to a shoutrrr URL.
	send func(url, message string) error

	queue   chan alertJob
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	workers int
}

// NewAlertService starts cfg.Workers delivery goroutines. Call Close to
// drain the queue on shutdown.
func NewAlertService(providers store.AlertProviderRepository, cfg config.AlertConfig) *AlertService {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	s := &AlertService{
		providers: providers,
		limiter:   rate.NewLimiter(limit, burst),
		client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		send:    shoutrrr.Send,
		queue:   make(chan alertJob, cfg.QueueSize),
		workers: cfg.Workers,
	}
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Send queues e for every enabled provider whose minimum severity it meets.
func (s *AlertService) Send(ctx context.Context, e *models.SecurityEvent) error {
	providers, err := s.providers.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list alert providers: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrAlertServiceClosed
	}

	for _, p := range providers {
		if !e.Severity.AtLeast(p.MinSeverity) {
			continue
		}
		select {
		case s.queue <- alertJob{provider: p, event: *e}:
		default:
			metrics.IncAlert("dropped")
			logger.WithFields(logrus.Fields{"provider": p.Name, "event_id": e.ID}).Warn("alert queue full, dropping alert")
		}
	}
	return nil
}

// Close stops accepting alerts and waits for queued deliveries to finish.
func (s *AlertService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *AlertService) worker() {
	defer s.wg.Done()
	for job := range s.queue {
		if err := s.limiter.Wait(context.Background()); err != nil {
			metrics.IncAlert("dropped")
			continue
		}
		if err := s.deliver(job.provider, &job.event); err != nil {
			metrics.IncAlert("failed")
			logger.WithFields(logrus.Fields{
				"provider": job.provider.Name,
				"event_id": job.event.ID,
			}).WithError(err).Warn("failed to deliver alert")
			continue
		}
		metrics.IncAlert("sent")
	}
}

func (s *AlertService) deliver(p models.AlertProvider, e *models.SecurityEvent) error {
	title, message := alertText(e)
	if p.Type == "webhook" {
		return s.sendWebhook(p, title, message, e)
	}
	url := normalizeURL(p.Type, p.URL)
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		if _, err := validateWebhookURL(url); err != nil {
			return fmt.Errorf("invalid destination: %w", err)
		}
	}
	return s.send(url, fmt.Sprintf("%s\n\n%s", title, message))
}

func alertText(e *models.SecurityEvent) (string, string) {
	title := fmt.Sprintf("[%s] %s", strings.ToUpper(string(e.Severity)), e.Type)
	var b strings.Builder
	fmt.Fprintf(&b, "Time: %s\n", e.Timestamp.UTC().Format(time.RFC3339))
	if e.ActorID != "" {
		fmt.Fprintf(&b, "Actor: %s\n", util.SanitizeForLog(e.ActorID))
	}
	fmt.Fprintf(&b, "IP: %s\n", util.SanitizeForLog(e.IPAddress))
	if e.Details != "" {
		fmt.Fprintf(&b, "Details: %s", e.Details)
	}
	return title, strings.TrimRight(b.String(), "\n")
}

type webhookPayload struct {
	Title   string               `json:"title"`
	Message string               `json:"message"`
	Time    string               `json:"time"`
	Event   models.SecurityEvent `json:"event"`
}

func (s *AlertService) sendWebhook(p models.AlertProvider, title, message string, e *models.SecurityEvent) error {
	u, err := validateWebhookURL(p.URL)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}

	body, err := json.Marshal(webhookPayload{
		Title:   title,
		Message: message,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Event:   *e,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	// Connect to a resolved address and keep the original Host header.
	ips, err := net.LookupIP(u.Hostname())
	if err != nil || len(ips) == 0 {
		return fmt.Errorf("failed to resolve webhook host: %w", err)
	}
	var selectedIP net.IP
	for _, ip := range ips {
		if isLoopbackHost(u.Hostname()) || !isPrivateIP(ip) {
			selectedIP = ip
			break
		}
	}
	if selectedIP == nil {
		return fmt.Errorf("failed to find non-private IP for webhook host: %s", u.Hostname())
	}

	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	safeURL := &neturl.URL{
		Scheme:   u.Scheme,
		Host:     net.JoinHostPort(selectedIP.String(), port),
		Path:     u.Path,
		RawQuery: u.RawQuery,
	}
	req, err := http.NewRequest(http.MethodPost, safeURL.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Host = u.Host

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status: %d", resp.StatusCode)
	}
	return nil
}

var discordWebhookRegex = regexp.MustCompile(`^https://discord(?:app)?\.com/api/webhooks/(\d+)/([a-zA-Z0-9_-]+)`)

func normalizeURL(serviceType, rawURL string) string {
	if serviceType == "discord" {
		matches := discordWebhookRegex.FindStringSubmatch(rawURL)
		if len(matches) == 3 {
			return fmt.Sprintf("discord://%s@%s", matches[2], matches[1])
		}
	}
	return rawURL
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// isPrivateIP returns true for RFC1918, loopback and link-local addresses.
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsPrivate() {
		return true
	}
	return ip.IsUnspecified()
}

// validateWebhookURL only accepts http(s) URLs whose host does not resolve
// to a private address. Loopback hosts are allowed for local receivers.
func validateWebhookURL(raw string) (*neturl.URL, error) {
	u, err := neturl.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("missing host")
	}
	if isLoopbackHost(host) {
		return u, nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("disallowed host IP: %s", ip.String())
		}
	}
	return u, nil
}
