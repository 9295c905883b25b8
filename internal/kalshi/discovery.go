package kalshi

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kalshi-trader/internal/classify"
	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/gateway"
)

// DiscoveryConfig configures mention series discovery.
type DiscoveryConfig struct {
	SeriesTTL    time.Duration `yaml:"series_ttl"`
	MilestoneTTL time.Duration `yaml:"milestone_ttl"`
	Marker       string        `yaml:"marker"`   // ticker substring marking a mention series
	Keywords     []string      `yaml:"keywords"` // lowercase title keywords
	Fallback     []string      `yaml:"fallback"` // used when discovery fails
}

// DefaultDiscoveryConfig returns production discovery settings.
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		SeriesTTL:    time.Hour,
		MilestoneTTL: 10 * time.Minute,
		Marker:       "MENTION",
		Keywords:     append([]string(nil), classify.MentionSeriesKeywords...),
		Fallback:     append([]string(nil), classify.FallbackMentionSeries...),
	}
}

// SeriesDiscovery finds mention series and caches their milestone schedule.
type SeriesDiscovery struct {
	reader gateway.MarketReader
	cfg    DiscoveryConfig
	log    zerolog.Logger

	mu           sync.Mutex
	series       []string
	seriesAt     time.Time
	milestones   map[string]domain.Milestone
	milestoneKey string
	milestoneAt  time.Time
}

// NewSeriesDiscovery creates a discovery cache over r.
func NewSeriesDiscovery(r gateway.MarketReader, cfg DiscoveryConfig, log zerolog.Logger) *SeriesDiscovery {
	return &SeriesDiscovery{
		reader: r,
		cfg:    cfg,
		log:    log.With().Str("component", "series_discovery").Logger(),
	}
}

// MentionSeries returns the mention series tickers, refreshing after SeriesTTL.
// On failure the previous list is kept; with no previous list the fallback is used.
func (d *SeriesDiscovery) MentionSeries(ctx context.Context, now time.Time) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.series != nil && now.Sub(d.seriesAt) < d.cfg.SeriesTTL {
		return append([]string(nil), d.series...)
	}

	all, err := d.reader.ListSeries(ctx)
	found := d.match(all)
	switch {
	case err == nil && len(found) > 0:
		d.series = found
		d.log.Info().Int("series", len(found)).Msg("mention series discovered")
	case d.series != nil:
		d.log.Warn().Err(err).Msg("series discovery failed, keeping previous list")
	default:
		d.series = append([]string(nil), d.cfg.Fallback...)
		d.log.Warn().Err(err).Int("series", len(d.series)).Msg("series discovery failed, using fallback list")
	}
	d.seriesAt = now
	return append([]string(nil), d.series...)
}

func (d *SeriesDiscovery) match(all []domain.Series) []string {
	marker := strings.ToUpper(d.cfg.Marker)
	seen := make(map[string]bool)
	var out []string
	for _, s := range all {
		if s.Ticker == "" || seen[s.Ticker] {
			continue
		}
		ok := marker != "" && strings.Contains(strings.ToUpper(s.Ticker), marker)
		if !ok {
			title := strings.ToLower(s.Title)
			for _, kw := range d.cfg.Keywords {
				if strings.Contains(title, kw) {
					ok = true
					break
				}
			}
		}
		if ok {
			seen[s.Ticker] = true
			out = append(out, s.Ticker)
		}
	}
	sort.Strings(out)
	return out
}

// Milestones returns the schedule for series, cached for MilestoneTTL.
// A failed refresh serves the previous schedule when one exists.
func (d *SeriesDiscovery) Milestones(ctx context.Context, series []string, now time.Time) (map[string]domain.Milestone, error) {
	key := strings.Join(series, ",")

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.milestones != nil && d.milestoneKey == key && now.Sub(d.milestoneAt) < d.cfg.MilestoneTTL {
		return d.milestones, nil
	}

	ms, err := d.reader.Milestones(ctx, series)
	if err != nil {
		if d.milestones != nil {
			d.log.Warn().Err(err).Msg("milestone refresh failed, serving stale schedule")
			return d.milestones, nil
		}
		return nil, err
	}
	d.milestones = ms
	d.milestoneKey = key
	d.milestoneAt = now
	d.log.Debug().Int("events", len(ms)).Msg("milestones refreshed")
	return ms, nil
}
