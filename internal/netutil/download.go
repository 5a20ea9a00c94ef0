// Package netutil downloads library files over HTTP with integrity digests.
package netutil

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cloudloader/cloudinstaller/internal/version"
)

type DownloadConfig struct {
	// AllowPrivateHosts permits loopback/RFC1918 hosts (local mirrors, tests).
	AllowPrivateHosts bool
	// AllowInsecureHTTP permits plain http:// URLs.
	AllowInsecureHTTP bool
	MaxRedirects      int
	Timeout           time.Duration
	MaxSize           int64
	UserAgent         string

	// UseEnvProxy routes requests through HTTPS_PROXY/HTTP_PROXY (honoring
	// NO_PROXY). The proxy is dialed without the private address check; target
	// hosts are still checked by ValidateURL before the request and on redirects.
	UseEnvProxy bool
}

const DefaultMaxDownloadSize = 512 * 1024 * 1024

func DefaultConfig() DownloadConfig {
	return DownloadConfig{
		AllowPrivateHosts: false,
		AllowInsecureHTTP: false,
		MaxRedirects:      5,
		Timeout:           5 * time.Minute,
		MaxSize:           DefaultMaxDownloadSize,
		UserAgent:         version.UserAgent(),
	}
}

type DownloadResult struct {
	Path   string
	SHA1   string
	SHA256 string
	Size   int64
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s failed with status %d", e.URL, e.StatusCode)
}

// Downloader fetches URLs into files. It is safe to reuse across downloads.
type Downloader struct {
	config DownloadConfig
	client *http.Client
}

func NewDownloader(config DownloadConfig) *Downloader {
	return &Downloader{config: config, client: createSecureClient(config)}
}

// Download writes rawURL to dst, creating parent directories. The body is streamed
// into dst+".part" and renamed into place only after it was fully received, so an
// interrupted download never leaves a truncated file at dst.
func (d *Downloader) Download(ctx context.Context, rawURL, dst string) (*DownloadResult, error) {
	if err := ValidateURL(rawURL, d.config); err != nil {
		return nil, fmt.Errorf("invalid download URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if d.config.UserAgent != "" {
		req.Header.Set("User-Agent", d.config.UserAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}

	part := dst + ".part"
	out, err := os.Create(part)
	if err != nil {
		return nil, err
	}

	var body io.Reader = resp.Body
	if d.config.MaxSize > 0 {
		body = io.LimitReader(resp.Body, d.config.MaxSize+1)
	}

	h1 := sha1.New()
	h256 := sha256.New()
	size, err := io.Copy(out, io.TeeReader(body, io.MultiWriter(h1, h256)))
	if err != nil {
		out.Close()
		os.Remove(part)
		return nil, err
	}
	if err := out.Close(); err != nil {
		os.Remove(part)
		return nil, err
	}

	if d.config.MaxSize > 0 && size > d.config.MaxSize {
		os.Remove(part)
		return nil, fmt.Errorf("download exceeds maximum size limit (%d bytes > %d bytes)", size, d.config.MaxSize)
	}

	if err := os.Rename(part, dst); err != nil {
		os.Remove(part)
		return nil, err
	}

	return &DownloadResult{
		Path:   dst,
		SHA1:   hex.EncodeToString(h1.Sum(nil)),
		SHA256: hex.EncodeToString(h256.Sum(nil)),
		Size:   size,
	}, nil
}

// JoinURL appends a '/'-separated relative path to a base URL.
func JoinURL(base, rel string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(rel, "/")
}

func ValidateURL(rawURL string, config DownloadConfig) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !config.AllowInsecureHTTP {
			return fmt.Errorf("plain http:// URLs are not allowed; got %q", rawURL)
		}
	default:
		return fmt.Errorf("only https:// URLs allowed for downloads; got %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL has no host: %q", rawURL)
	}

	if !config.AllowPrivateHosts {
		host := strings.ToLower(parsed.Hostname())
		if err := validateHostNotPrivate(host); err != nil {
			return fmt.Errorf("%w (set allow_private_hosts to override)", err)
		}
	}

	return nil
}

func validateHostNotPrivate(host string) error {
	if host == "localhost" {
		return fmt.Errorf("localhost not allowed")
	}

	ip := net.ParseIP(host)
	if ip != nil && IsPrivateOrReservedIP(ip) {
		return fmt.Errorf("private/reserved IP address not allowed: %s", host)
	}

	return nil
}

func IsPrivateOrReservedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}

	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 0:
			return true
		case ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127:
			return true
		case ip4[0] == 198 && (ip4[1] == 18 || ip4[1] == 19):
			return true
		case ip4[0] == 192 && ip4[1] == 0 && (ip4[2] == 0 || ip4[2] == 2):
			return true
		case ip4[0] == 198 && ip4[1] == 51 && ip4[2] == 100:
			return true
		case ip4[0] == 203 && ip4[1] == 0 && ip4[2] == 113:
			return true
		case ip4[0] >= 240:
			return true
		}
	}

	return false
}

func createSecureClient(config DownloadConfig) *http.Client {
	var dialCtx func(ctx context.Context, network, addr string) (net.Conn, error)
	if config.AllowPrivateHosts {
		dialer := &net.Dialer{Timeout: 30 * time.Second}
		dialCtx = dialer.DialContext
	} else {
		dialCtx = safeDialContext
	}

	// resolved IPs are validated at connect time
	transport := &http.Transport{DialContext: dialCtx}
	if config.UseEnvProxy {
		pd := newProxyDialer(dialCtx)
		transport.Proxy = pd.Proxy
		transport.DialContext = pd.DialContext
	}

	maxRedirects := config.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = 5
	}

	return &http.Client{
		Timeout: config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("too many redirects (%d)", len(via))
			}

			if err := ValidateURL(req.URL.String(), config); err != nil {
				return fmt.Errorf("redirect to insecure URL blocked: %w", err)
			}

			if len(via) > 0 && via[len(via)-1].URL.Scheme == "https" && req.URL.Scheme == "http" {
				return fmt.Errorf("HTTPS to HTTP downgrade not allowed")
			}

			return nil
		},
		Transport: transport,
	}
}

// envProxy is replaced in tests. http.ProxyFromEnvironment reads the
// environment only once per process.
var envProxy = http.ProxyFromEnvironment

// proxyDialer remembers the proxies chosen for requests and dials them directly.
// Every other address goes through next.
type proxyDialer struct {
	next func(ctx context.Context, network, addr string) (net.Conn, error)

	mu      sync.Mutex
	proxies map[string]bool
}

func newProxyDialer(next func(ctx context.Context, network, addr string) (net.Conn, error)) *proxyDialer {
	return &proxyDialer{next: next, proxies: make(map[string]bool)}
}

func (p *proxyDialer) Proxy(req *http.Request) (*url.URL, error) {
	u, err := envProxy(req)
	if err != nil || u == nil {
		return u, err
	}
	p.mu.Lock()
	p.proxies[proxyAddr(u)] = true
	p.mu.Unlock()
	return u, nil
}

func (p *proxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	p.mu.Lock()
	isProxy := p.proxies[addr]
	p.mu.Unlock()
	if isProxy {
		dialer := &net.Dialer{Timeout: 30 * time.Second}
		return dialer.DialContext(ctx, network, addr)
	}
	return p.next(ctx, network, addr)
}

// proxyAddr is the host:port the transport dials for u.
func proxyAddr(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	switch u.Scheme {
	case "https":
		port = "443"
	case "socks5", "socks5h":
		port = "1080"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}

	if len(ips) == 0 {
		return nil, fmt.Errorf("no IP addresses found for %s", host)
	}

	for _, ip := range ips {
		if IsPrivateOrReservedIP(ip) {
			return nil, fmt.Errorf("DNS resolved to private/reserved IP address (%s -> %s); connection blocked", host, ip.String())
		}
	}

	dialer := &net.Dialer{Timeout: 30 * time.Second}
	return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
}
