package nwm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ErrNotPublished reports that the archive has no artifact for the
// requested cycle yet. Callers skip the cycle instead of failing it; the
// next trigger catches up.
var ErrNotPublished = errors.New("artifact not yet published")

// Artifact is one fetched file, cached on disk and tagged with its origin.
type Artifact struct {
	Product      Product
	CycleTime    time.Time
	ForecastHour int
	Domain       string
	Path         string
}

// FetchConfig tunes the archive client.
type FetchConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	CacheDir       string        `mapstructure:"cache_dir"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Fetcher downloads forecast artifacts from the HTTP archive into an
// on-disk cache. It is the only ingestion stage that touches the network.
type Fetcher struct {
	cfg    FetchConfig
	client *http.Client
	log    *zap.Logger
}

// NewFetcher builds a Fetcher. The per-request timeout applies to each
// attempt; the caller's context bounds the whole job.
func NewFetcher(cfg FetchConfig, log *zap.Logger) *Fetcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 2 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.Named("fetcher"),
	}
}

// Fetch retrieves every retained artifact of the job's cycle. Already
// cached artifacts are reused without a network round trip. If any artifact
// is still unpublished after retries the whole cycle reports ErrNotPublished
// so the scheduler records a skip rather than a failure.
func (f *Fetcher) Fetch(ctx context.Context, job CycleJob) ([]Artifact, error) {
	artifacts := make([]Artifact, 0, len(job.Offsets))
	for _, offset := range job.Offsets {
		rel := ArchivePath(job.Product, job.CycleTime, offset, job.Domain)
		dest := filepath.Join(f.cfg.CacheDir, filepath.FromSlash(rel))

		if st, err := os.Stat(dest); err == nil && st.Size() > 0 {
			f.log.Debug("artifact cached", zap.String("path", dest))
		} else if err := f.download(ctx, f.cfg.BaseURL+"/"+rel, dest); err != nil {
			if errors.Is(err, ErrNotPublished) {
				f.log.Info("cycle not yet published, skipping",
					zap.String("job", job.String()),
					zap.Int("forecast_hour", offset))
				return nil, fmt.Errorf("%s f%03d: %w", job, offset, ErrNotPublished)
			}
			return nil, fmt.Errorf("fetch %s f%03d: %w", job, offset, err)
		}

		artifacts = append(artifacts, Artifact{
			Product:      job.Product,
			CycleTime:    job.CycleTime,
			ForecastHour: offset,
			Domain:       job.Domain,
			Path:         dest,
		})
	}
	return artifacts, nil
}

// download retrieves one URL into dest with capped exponential backoff.
// 404 and 5xx responses are retried; other client errors fail immediately.
func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.backoff(attempt)):
			}
			f.log.Debug("retrying fetch", zap.String("url", url), zap.Int("attempt", attempt))
		}
		err := f.tryDownload(ctx, url, dest)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("after %d attempts: %w", f.cfg.MaxRetries+1, lastErr)
}

// backoff doubles the initial delay per attempt up to the configured cap.
func (f *Fetcher) backoff(attempt int) time.Duration {
	d := f.cfg.BackoffInitial << uint(attempt-1)
	if d > f.cfg.BackoffMax || d <= 0 {
		d = f.cfg.BackoffMax
	}
	return d
}

// statusError distinguishes HTTP response codes from transport failures.
type statusError int

func (e statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", int(e))
}

func retryable(err error) bool {
	if errors.Is(err, ErrNotPublished) {
		return true
	}
	var se statusError
	if errors.As(err, &se) {
		return int(se) >= 500
	}
	// Transport-level failures (timeouts, resets) are worth retrying.
	return true
}

// tryDownload performs a single GET, streaming the body to a temp file and
// renaming it into place so concurrent readers never observe a partial
// artifact.
func (f *Fetcher) tryDownload(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotPublished
	case resp.StatusCode >= 500:
		return statusError(resp.StatusCode)
	default:
		return fmt.Errorf("get %s: %w", url, statusError(resp.StatusCode))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("stream artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("publish artifact into cache: %w", err)
	}
	return nil
}
