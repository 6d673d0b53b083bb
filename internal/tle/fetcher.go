package tle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

const (
	defaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=starlink&FORMAT=tle"
	maxBodyBytes     = 50 << 20
)

// Fetcher retrieves raw element sets from a primary URL plus optional extra
// URLs whose bodies are appended to the primary one.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source URL.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = defaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch retrieves the primary source and then each extra source. A failing
// extra source is logged and skipped; a failing primary is an error.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	body, err := f.get(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(body)
	for _, u := range f.extraURLs {
		extra, err := f.get(ctx, u)
		if err != nil {
			f.logger.Warn("extra TLE source failed", "url", u, "error", err)
			continue
		}
		if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
			buf.WriteByte('\n')
		}
		buf.Write(extra)
	}
	return buf.Bytes(), nil
}

// Load fetches and parses the configured sources into a Dataset.
func (f *Fetcher) Load(ctx context.Context) (*Dataset, error) {
	data, err := f.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return f.parse(data, time.Now())
}

func (f *Fetcher) parse(data []byte, fetchedAt time.Time) (*Dataset, error) {
	sets, err := Parse(bytes.NewReader(data), f.logger)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("no valid element sets from %s", f.sourceURL)
	}
	return NewDataset(f.sourceURL, fetchedAt, sets), nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	// Read one byte past the limit to tell "exactly at" from "over".
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}

	return body, nil
}

// LoadFile reads element sets from a local file.
func LoadFile(path string, logger *slog.Logger) (*Dataset, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening TLE file: %w", err)
	}
	defer fh.Close()

	sets, err := Parse(fh, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%s: no valid element sets", path)
	}

	fetchedAt := time.Now()
	if info, err := fh.Stat(); err == nil {
		fetchedAt = info.ModTime()
	}
	return NewDataset("file://"+path, fetchedAt, sets), nil
}

// LoadWithArchive is LoadAndArchive with a fallback: when the fetch fails or
// yields nothing usable, the newest archived file is loaded instead.
func (f *Fetcher) LoadWithArchive(ctx context.Context, a *Archive) (*Dataset, error) {
	ds, err := f.LoadAndArchive(ctx, a)
	if err == nil {
		return ds, nil
	}

	f.logger.Warn("TLE fetch failed, falling back to archive", "source_url", f.sourceURL, "error", err)
	archived, aerr := a.LoadLatest(f.logger)
	if aerr != nil {
		return nil, fmt.Errorf("fetch: %w; archive: %v", err, aerr)
	}
	if len(archived.Satellites) == 0 {
		return nil, fmt.Errorf("fetch: %w; archive holds no valid element sets", err)
	}
	return archived, nil
}

// LoadAndArchive fetches and parses the configured sources, saving the raw
// body to a. Archive write failures are logged, not returned.
func (f *Fetcher) LoadAndArchive(ctx context.Context, a *Archive) (*Dataset, error) {
	data, err := f.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	ds, err := f.parse(data, now)
	if err != nil {
		return nil, err
	}
	if err := a.Save(data, now); err != nil {
		f.logger.Warn("archiving TLE data failed", "error", err)
	}
	return ds, nil
}
