// Package downloader implements the Downloader (C4): HTTP fetches with
// strict per-stage timeouts, a body size cap, robots.txt enforcement, and
// the quality gate that decides whether a fetched page is usable.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/venue"
)

const (
	connectTimeout  = 1 * time.Second
	firstByteTimeout = 1 * time.Second
	totalTimeout    = 3 * time.Second
	maxRetries      = 2
)

// PageFetch is the successful result of Fetch.
type PageFetch struct {
	FinalURL      string
	Status        int
	ContentType   string
	BodyBytes     int
	FirstByteMs   int
	TotalMs       int
	RedirectChain []string
	RawHTML       string
	CleanedText   string
}

// FetchError classifies an unsuccessful Fetch.
type FetchError struct {
	Reason venue.Reason
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return string(e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Backoff is invoked between Fetch's retry attempts after a transient
// failure, so a caller-supplied Rate Gate can open its backoff window and
// wait it out before the next attempt goes out. A nil Backoff makes Fetch
// retry back-to-back, which is only appropriate in tests.
type Backoff func(ctx context.Context, host string) error

// Downloader fetches one URL at a time under the fixed budgets in §4.3.
type Downloader struct {
	client      *http.Client
	robots      *RobotsCache
	userAgent   string
	maxBodySize int64
	log         *zap.Logger
}

// New builds a Downloader. maxBodySize is the hard cap on response bytes
// (§4.3, default 2MB from configuration).
func New(userAgent string, maxBodySize int64, robots *RobotsCache, log *zap.Logger) *Downloader {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: firstByteTimeout,
		TLSHandshakeTimeout:   connectTimeout,
	}
	return &Downloader{
		client: &http.Client{
			Transport: transport,
			Timeout:   totalTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		robots:      robots,
		userAgent:   userAgent,
		maxBodySize: maxBodySize,
		log:         log,
	}
}

// Fetch downloads rawURL, honoring robots.txt, content-type filtering, and
// the size cap, retrying transient failures up to maxRetries times through
// the caller-supplied backoff hook. ctx should already carry the
// orchestrator's remaining wall-clock budget as a deadline.
func (d *Downloader) Fetch(ctx context.Context, rawURL string, backoff Backoff) (*PageFetch, *FetchError) {
	if !d.robots.Allowed(ctx, rawURL) {
		return nil, &FetchError{Reason: venue.ReasonRobotsDisallowed}
	}

	var lastErr *FetchError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		fetch, ferr := d.attempt(ctx, rawURL)
		if ferr == nil {
			return fetch, nil
		}
		lastErr = ferr
		if !ferr.Reason.Transient() {
			return nil, ferr
		}
		if attempt == maxRetries {
			break
		}
		if err := d.wait(ctx, rawURL, backoff); err != nil {
			return nil, &FetchError{Reason: venue.ReasonTimeBudgetExceeded, Err: err}
		}
	}
	return nil, lastErr
}

// wait pauses between retry attempts: through backoff when the caller
// supplied one, or just a context-cancellation check otherwise.
func (d *Downloader) wait(ctx context.Context, rawURL string, backoff Backoff) error {
	if backoff == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	host, err := hostOf(rawURL)
	if err != nil {
		return nil
	}
	return backoff(ctx, host)
}

func (d *Downloader) attempt(ctx context.Context, rawURL string) (*PageFetch, *FetchError) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Reason: venue.ReasonNetworkTimeout, Err: err}
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	var redirects []string
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.Request != nil && resp.Request.URL != nil && resp.Request.URL.String() != rawURL {
		redirects = append(redirects, resp.Request.URL.String())
	}

	firstByteMs := int(time.Since(start).Milliseconds())

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode == http.StatusOK && !isAcceptedContentType(contentType) {
		return nil, &FetchError{Reason: venue.ReasonInvalidMIME}
	}

	limited := io.LimitReader(resp.Body, d.maxBodySize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, &FetchError{Reason: venue.ReasonNetworkTimeout, Err: err}
	}
	if int64(len(body)) > d.maxBodySize {
		return nil, &FetchError{Reason: venue.ReasonSizeExceeded}
	}

	totalMs := int(time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &FetchError{Reason: venue.ReasonHTTP429}
	}
	if resp.StatusCode >= 500 {
		return nil, &FetchError{Reason: venue.ReasonHTTP5xx}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Reason: venue.ReasonNon200Status}
	}

	cleaned, err := CleanVisibleText(string(body))
	if err != nil {
		return nil, &FetchError{Reason: venue.ReasonThinContent, Err: err}
	}

	if reason := ClassifyQuality(resp.StatusCode, contentType, cleaned); reason != "" {
		return nil, &FetchError{Reason: reason}
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &PageFetch{
		FinalURL:      finalURL,
		Status:        resp.StatusCode,
		ContentType:   contentType,
		BodyBytes:     len(body),
		FirstByteMs:   firstByteMs,
		TotalMs:       totalMs,
		RedirectChain: redirects,
		RawHTML:       string(body),
		CleanedText:   cleaned,
	}, nil
}

func classifyTransportError(err error) *FetchError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Reason: venue.ReasonNetworkTimeout, Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &FetchError{Reason: venue.ReasonDNSFailure, Err: err}
	}
	if strings.Contains(err.Error(), "tls") || strings.Contains(err.Error(), "certificate") {
		return &FetchError{Reason: venue.ReasonTLSError, Err: err}
	}
	return &FetchError{Reason: venue.ReasonNetworkTimeout, Err: err}
}

// ContentHash computes the store's dedup key from cleaned text, so
// byte-identical prose across venues (e.g. shared franchise boilerplate)
// collapses to one scraped_pages row regardless of cosmetic URL
// differences.
func ContentHash(cleanedText string) string {
	sum := sha256.Sum256([]byte(cleanedText))
	return hex.EncodeToString(sum[:])
}

// SameRegisteredDomain reports whether two URLs share the same eTLD+1-ish
// host. It uses a conservative last-two-labels heuristic rather than a
// public-suffix list, sufficient for the same-host rule in §4.4 without an
// extra dependency the example pack does not already carry.
func SameRegisteredDomain(a, b string) bool {
	ha, erra := hostOf(a)
	hb, errb := hostOf(b)
	if erra != nil || errb != nil {
		return false
	}
	return RegistrableDomain(ha) == RegistrableDomain(hb)
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	return strings.ToLower(u.Hostname()), nil
}

// RegistrableDomain reduces host to its last two labels (a conservative
// eTLD+1 approximation), shared by the same-host link rule here and by the
// Rate Gate's per-host bucketing so both agree on what "one host" means.
func RegistrableDomain(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
