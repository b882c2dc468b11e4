// Package retrieval fetches a dataset's data and metadata, caching both, with
// bounded retries around the network.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/squaregoldfish/cdi-generator/services/generator/internal/cache"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/metrics"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/pangaea"
)

const (
	DefaultNetworkRetries = 3
	DefaultRetryWait      = 10 * time.Second

	// maxSessionRenewals bounds consecutive session expiries within one attempt.
	maxSessionRenewals = 3
)

var (
	// ErrDatasetNotFound is returned when the catalogue reports the ID as unknown.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrRetrievalFailed is returned when every attempt failed.
	ErrRetrievalFailed = errors.New("retrieval failed")
)

// Fetcher performs single network fetches. Errors matching
// pangaea.ErrNotFound or pangaea.ErrSessionExpired are treated specially; all
// others are retried.
type Fetcher interface {
	FetchData(ctx context.Context, id string) ([]byte, error)
	FetchMetadata(ctx context.Context, id string) ([]byte, error)
}

// SessionRenewer is implemented by fetchers whose sessions can expire.
type SessionRenewer interface {
	RenewSession(ctx context.Context) error
}

// Processor is the importer-specific half of a retrieval.
type Processor interface {
	// Reformat converts freshly downloaded data into its cached form.
	Reformat(raw []byte) ([]byte, error)
	ParseMetadata(metadata []byte) error
	ParseData(data []byte) error
}

// ProgressFunc receives human readable status lines.
type ProgressFunc func(msg string)

// Payload is the retrieved pair for one dataset.
type Payload struct {
	ID                string
	Data              []byte
	Metadata          []byte
	DataFromCache     bool
	MetadataFromCache bool
}

// Config carries the retry policy.
type Config struct {
	NetworkRetries int
	RetryWait      time.Duration
}

type Options struct {
	Fetcher  Fetcher
	Cache    cache.Store
	Config   Config
	Progress ProgressFunc
	Logger   *log.Logger
	Metrics  *metrics.Recorder
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Pipeline runs retrievals sequentially; it is not safe for concurrent use.
type Pipeline struct {
	fetcher  Fetcher
	cache    cache.Store
	cfg      Config
	progress ProgressFunc
	logger   *log.Logger
	metrics  *metrics.Recorder
	sleep    func(ctx context.Context, d time.Duration) error
}

// New validates opts and fills defaults.
func New(opts Options) (*Pipeline, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("retrieval: fetcher required")
	}
	if opts.Config.NetworkRetries < 1 {
		return nil, fmt.Errorf("retrieval: network retries must be at least 1, got %d", opts.Config.NetworkRetries)
	}
	if opts.Config.RetryWait < 0 {
		return nil, fmt.Errorf("retrieval: negative retry wait %s", opts.Config.RetryWait)
	}
	p := &Pipeline{
		fetcher:  opts.Fetcher,
		cache:    opts.Cache,
		cfg:      opts.Config,
		progress: opts.Progress,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		sleep:    opts.Sleep,
	}
	if p.cache == nil {
		p.cache = cache.NewMemoryStore()
	}
	if p.progress == nil {
		p.progress = func(string) {}
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	return p, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DataKey and MetadataKey name the cache entries for id.
func DataKey(id string) string     { return id + "_data" }
func MetadataKey(id string) string { return id + "_metadata" }

// Retrieve loads the data and metadata for id from the cache or the network,
// then hands both to proc. Only freshly fetched data is reformatted; cached
// data is stored in its reformatted form.
func (p *Pipeline) Retrieve(ctx context.Context, id string, proc Processor) (Payload, error) {
	payload := Payload{ID: id}

	data, hit, err := p.cached(ctx, DataKey(id), metrics.KindData)
	if err != nil {
		return payload, err
	}
	if hit {
		payload.DataFromCache = true
	} else {
		raw, err := p.fetch(ctx, metrics.KindData, id, p.fetcher.FetchData)
		if err != nil {
			return payload, err
		}
		data, err = proc.Reformat(raw)
		if err != nil {
			return payload, fmt.Errorf("reformat data for %s: %w", id, err)
		}
		if err := p.store(ctx, DataKey(id), data); err != nil {
			return payload, err
		}
	}
	payload.Data = data

	meta, hit, err := p.cached(ctx, MetadataKey(id), metrics.KindMetadata)
	if err != nil {
		return payload, err
	}
	if hit {
		payload.MetadataFromCache = true
	} else {
		meta, err = p.fetch(ctx, metrics.KindMetadata, id, p.fetcher.FetchMetadata)
		if err != nil {
			return payload, err
		}
		if err := p.store(ctx, MetadataKey(id), meta); err != nil {
			return payload, err
		}
	}
	payload.Metadata = meta

	if err := proc.ParseMetadata(meta); err != nil {
		return payload, fmt.Errorf("process metadata for %s: %w", id, err)
	}
	if err := proc.ParseData(data); err != nil {
		return payload, fmt.Errorf("process data for %s: %w", id, err)
	}
	return payload, nil
}

func (p *Pipeline) cached(ctx context.Context, key, kind string) ([]byte, bool, error) {
	ok, err := p.cache.Exists(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("check cache %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	b, err := p.cache.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("read cache %s: %w", key, err)
	}
	p.metrics.CacheHit(kind)
	return b, true, nil
}

func (p *Pipeline) store(ctx context.Context, key string, value []byte) error {
	err := p.cache.Put(ctx, key, value)
	if errors.Is(err, cache.ErrExists) {
		p.logger.Printf("cache entry %s already present, keeping existing value", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	return nil
}

// sessionError ends a retrieval without further attempts.
type sessionError struct {
	err error
}

func (e *sessionError) Error() string { return e.err.Error() }
func (e *sessionError) Unwrap() error { return e.err }

type fetchFunc func(ctx context.Context, id string) ([]byte, error)

func (p *Pipeline) fetch(ctx context.Context, kind, id string, fn fetchFunc) ([]byte, error) {
	remaining := p.cfg.NetworkRetries
	var lastErr error
	for remaining > 0 {
		body, err := p.attempt(ctx, kind, id, fn)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, pangaea.ErrNotFound) {
			p.logger.Printf("%s %s: not found", kind, id)
			return nil, fmt.Errorf("%w: %s: %w", ErrDatasetNotFound, id, err)
		}
		var se *sessionError
		if errors.As(err, &se) {
			p.metrics.FetchFailure(kind)
			p.logger.Printf("%s %s: %v", kind, id, se.err)
			p.progress(fmt.Sprintf("%s retrieval for %s failed: %v", kind, id, se.err))
			return nil, fmt.Errorf("%w: %s for %s: %w", ErrRetrievalFailed, kind, id, se.err)
		}

		lastErr = err
		remaining--
		p.metrics.FetchFailure(kind)
		p.logger.Printf("%s retrieval attempt for %s failed (%d attempts remaining): %v", kind, id, remaining, err)
		if remaining == 0 {
			break
		}
		if err := p.backoff(ctx, kind, remaining); err != nil {
			lastErr = err
			break
		}
	}
	p.progress(fmt.Sprintf("%s retrieval for %s failed", kind, id))
	return nil, fmt.Errorf("%w: %s for %s: %w", ErrRetrievalFailed, kind, id, lastErr)
}

// attempt runs one fetch, renewing an expired session in place without
// counting against the retry budget.
func (p *Pipeline) attempt(ctx context.Context, kind, id string, fn fetchFunc) ([]byte, error) {
	renewals := 0
	for {
		p.metrics.FetchAttempt(kind)
		body, err := fn(ctx, id)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, pangaea.ErrSessionExpired) {
			return nil, err
		}
		renewer, ok := p.fetcher.(SessionRenewer)
		if !ok {
			return nil, err
		}
		if renewals >= maxSessionRenewals {
			return nil, &sessionError{err: fmt.Errorf("session expired %d times in a row: %w", renewals+1, err)}
		}
		renewals++
		p.metrics.SessionRenewal()
		p.logger.Printf("%s %s: session expired, renewing", kind, id)
		if rerr := renewer.RenewSession(ctx); rerr != nil {
			return nil, &sessionError{err: fmt.Errorf("renew session: %w", rerr)}
		}
	}
}

// backoff waits RetryWait, reporting the countdown once per second.
func (p *Pipeline) backoff(ctx context.Context, kind string, remaining int) error {
	for left := p.cfg.RetryWait; left > 0; left -= time.Second {
		secs := int((left + time.Second - 1) / time.Second)
		p.progress(fmt.Sprintf("%s retrieval failed. Retrying in %d seconds (%d attempts remaining)", kind, secs, remaining))
		step := time.Second
		if left < step {
			step = left
		}
		if err := p.sleep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}
