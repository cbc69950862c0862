package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"joke-pipeline/internal/config"
	"joke-pipeline/internal/metrics"
	"joke-pipeline/internal/models"
	"joke-pipeline/pkg/logger"
)

// maxBodyBytes caps how much of an API response is read. A joke is a few
// hundred bytes.
const maxBodyBytes = 64 << 10

var (
	ErrMalformedJoke     = errors.New("malformed joke payload")
	ErrUnexpectedStatus  = errors.New("unexpected status from joke API")
	errMissingJokeFields = errors.New("missing required field")
)

type Collector struct {
	api    config.APIConfig
	cfg    config.CollectorConfig
	loc    *time.Location
	client *http.Client
	now    func() time.Time
}

func New(api config.APIConfig, cfg config.CollectorConfig, opts ...Option) (*Collector, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	c := &Collector{
		api: api,
		cfg: cfg,
		loc: loc,
		client: &http.Client{
			Timeout: api.Timeout,
		},
		now: time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type Option func(*Collector)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Collector) {
		c.client = client
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// apiJoke mirrors the API body. Pointers let a missing field be told apart
// from a zero value.
type apiJoke struct {
	ID        *int64  `json:"id"`
	Type      *string `json:"type"`
	Setup     *string `json:"setup"`
	Punchline *string `json:"punchline"`
}

func (j apiJoke) validate() error {
	switch {
	case j.ID == nil:
		return fmt.Errorf("%w: id", errMissingJokeFields)
	case j.Type == nil:
		return fmt.Errorf("%w: type", errMissingJokeFields)
	case j.Setup == nil:
		return fmt.Errorf("%w: setup", errMissingJokeFields)
	case j.Punchline == nil:
		return fmt.Errorf("%w: punchline", errMissingJokeFields)
	}
	return nil
}

// Collect polls the joke API until the collection window has elapsed and
// returns what it captured, in capture order. Fetch failures are logged and
// skipped. A malformed payload either ends collection with ErrMalformedJoke
// or is skipped, depending on the on_malformed setting.
func (c *Collector) Collect(ctx context.Context) ([]models.JokeRecord, error) {
	jokes := make([]models.JokeRecord, 0)
	start := c.now()

	logger.Info("Collecting jokes",
		logger.String("url", c.api.URL),
		logger.Duration("window", c.cfg.Duration),
	)

	for c.now().Sub(start) < c.cfg.Duration {
		joke, err := c.fetch(ctx)
		switch {
		case err == nil:
			metrics.FetchesTotal.WithLabelValues(metrics.FetchOK).Inc()
			jokes = append(jokes, *joke)
			logger.Debug("Joke captured",
				logger.Int64("joke_id", joke.ID),
				logger.String("type", joke.Type),
			)
		case errors.Is(err, ErrMalformedJoke):
			metrics.FetchesTotal.WithLabelValues(metrics.FetchMalformed).Inc()
			if c.cfg.OnMalformed != config.OnMalformedSkip {
				logger.Error("Malformed joke payload, stopping collection", logger.Err(err))
				return jokes, err
			}
			logger.Warn("Skipping malformed joke payload", logger.Err(err))
		default:
			if ctx.Err() != nil {
				return jokes, ctx.Err()
			}
			metrics.FetchesTotal.WithLabelValues(metrics.FetchError).Inc()
			logger.Error("Error fetching joke", logger.Err(err))
		}

		if err := pause(ctx, c.cfg.Pause); err != nil {
			return jokes, err
		}
	}

	logger.Info("Collection window closed",
		logger.Int("count", len(jokes)),
		logger.Duration("elapsed", c.now().Sub(start)),
	)

	return jokes, nil
}

func (c *Collector) fetch(ctx context.Context) (*models.JokeRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.api.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: response larger than %d bytes", ErrMalformedJoke, maxBodyBytes)
	}

	var payload apiJoke
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJoke, err)
	}
	if err := payload.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJoke, err)
	}

	return &models.JokeRecord{
		ID:        *payload.ID,
		Type:      *payload.Type,
		Setup:     *payload.Setup,
		Punchline: *payload.Punchline,
		Timestamp: c.now().In(c.loc).Truncate(time.Second),
	}, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
