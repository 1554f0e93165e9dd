// Package attachment materializes file and image payloads in the output
// vault.
package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/image/tiff"
	"golang.org/x/sync/singleflight"

	"github.com/starford/craftmd/internal/diag"
	"github.com/starford/craftmd/internal/repository"
	"github.com/starford/craftmd/internal/storage"
)

// ErrNoSource means an attachment block carries no download URL.
var ErrNoSource = errors.New("attachment has no source url")

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 100 << 20 // 100 MB
	maxRedirects    = 5
)

// Options configure an HTTPStager.
type Options struct {
	Timeout  time.Duration
	MaxBytes int64
	// BlockLocal rejects loopback and cloud metadata hosts.
	BlockLocal bool
	Logger     *slog.Logger
}

// HTTPStager downloads attachments that are not yet in the vault.
type HTTPStager struct {
	store    storage.Provider
	client   *http.Client
	maxBytes int64
	log      *slog.Logger
	group    singleflight.Group
}

// NewHTTPStager creates a stager writing into store.
func NewHTTPStager(store storage.Provider, opts Options) *HTTPStager {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	client := &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxRedirects)
			}
			if opts.BlockLocal {
				return checkBlockedHost(req.URL.Hostname())
			}
			return nil
		},
	}
	s := &HTTPStager{store: store, client: client, maxBytes: opts.MaxBytes, log: opts.Logger}
	if opts.BlockLocal {
		s.client.Transport = &guardedTransport{base: http.DefaultTransport}
	}
	return s
}

// Stage downloads a.SourceURL to relPath unless the file already exists.
// A payload whose size differs from the recorded size is kept and reported
// through rec. TIFF payloads are converted to PNG.
func (s *HTTPStager) Stage(ctx context.Context, a repository.Attachment, relPath string, rec diag.Recorder) error {
	_, err, _ := s.group.Do(relPath, func() (any, error) {
		return nil, s.stage(ctx, a, relPath, rec)
	})
	return err
}

func (s *HTTPStager) stage(ctx context.Context, a repository.Attachment, relPath string, rec diag.Recorder) error {
	exists, err := s.store.Exists(relPath)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if a.SourceURL == "" {
		return fmt.Errorf("attachment: %s: %w", a.BlockID, ErrNoSource)
	}

	s.log.Info("downloading attachment", slog.String("path", relPath), slog.String("url", a.SourceURL))
	data, err := s.fetch(ctx, a.SourceURL)
	if err != nil {
		return fmt.Errorf("attachment: %s: %w", a.BlockID, err)
	}
	if got := int64(len(data)); got != a.ExpectedSize {
		rec.Warn(fmt.Sprintf("size mismatch in attachment %s: expected %d got %d", relPath, a.ExpectedSize, got), "")
	}

	if isTIFF(data) {
		converted, err := tiffToPNG(data)
		if err != nil {
			return fmt.Errorf("attachment: %s: %w", a.BlockID, err)
		}
		data = converted
	}
	if err := s.store.Write(relPath, data); err != nil {
		return fmt.Errorf("attachment: %s: %w", a.BlockID, err)
	}
	return nil
}

func (s *HTTPStager) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("file too large: exceeds %d bytes", s.maxBytes)
	}
	return data, nil
}

// guardedTransport checks the host of every request, not only redirects.
type guardedTransport struct {
	base http.RoundTripper
}

func (t *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := checkBlockedHost(req.URL.Hostname()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

func isTIFF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*"))
}

func tiffToPNG(data []byte) ([]byte, error) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode tiff: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Pending is an attachment an Offline stager did not fetch.
type Pending struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Offline is a stager for runs without network access. It records the
// attachments that are missing from the vault instead of fetching them.
type Offline struct {
	store storage.Provider

	mu      sync.Mutex
	pending map[string]string
}

// NewOffline creates an Offline stager over store.
func NewOffline(store storage.Provider) *Offline {
	return &Offline{store: store, pending: make(map[string]string)}
}

// Stage records relPath as pending when it does not exist yet.
func (o *Offline) Stage(_ context.Context, a repository.Attachment, relPath string, _ diag.Recorder) error {
	exists, err := o.store.Exists(relPath)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[relPath] = a.SourceURL
	return nil
}

// Pending returns the attachments that still need fetching, sorted by path.
func (o *Offline) Pending() []Pending {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Pending, 0, len(o.pending))
	for p, u := range o.pending {
		out = append(out, Pending{Path: p, URL: u})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
