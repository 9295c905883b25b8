package detector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalshi-trader/internal/classify"
	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/storage/memory"
)

var testNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T, window time.Duration) (*Ledger, *memory.CooldownStore) {
	t.Helper()
	store := memory.NewCooldownStore()
	ledger, err := NewLedger(context.Background(), store, window, zerolog.Nop())
	require.NoError(t, err)
	return ledger, store
}

// surgeTrades builds 20 small trades over the last 40 minutes: 16 YES takers,
// first four at 35c, last four at 55c, the rest at 45c.
func surgeTrades(ticker string) []domain.Trade {
	trades := make([]domain.Trade, 0, 20)
	for i := 0; i < 20; i++ {
		price := domain.Cents(45)
		switch {
		case i < 4:
			price = 35
		case i >= 16:
			price = 55
		}
		side := domain.SideYes
		if i%5 == 2 {
			side = domain.SideNo
		}
		trades = append(trades, domain.Trade{
			ID:        fmt.Sprintf("t%d", i),
			Ticker:    ticker,
			Count:     10,
			YesPrice:  price,
			TakerSide: side,
			CreatedAt: testNow.Add(-40*time.Minute + time.Duration(i)*2*time.Minute),
		})
	}
	return trades
}

func TestReversion_SurgeScenario(t *testing.T) {
	ledger, _ := newTestLedger(t, 4*time.Hour)
	d := NewReversion(DefaultReversionConfig(), classify.NewDefault(), ledger, zerolog.Nop())

	// Reverse the order to check the detector sorts by time.
	trades := surgeTrades("KXFED-26MAR-T4.50")
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}

	signals := d.Detect(context.Background(), Observations{Trades: trades}, testNow)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, domain.KindReversion, sig.Kind)
	assert.Equal(t, domain.FadeSell, sig.Action)
	assert.Equal(t, domain.SideNo, sig.Side)
	assert.Equal(t, domain.Cents(45), sig.TargetPrice)
	assert.Equal(t, domain.Cents(55), sig.YesPrice)
	require.NotNil(t, sig.Reversion)
	assert.Equal(t, 20, sig.Reversion.SmallTrades)
	assert.InDelta(t, 0.8, sig.Reversion.YesRatio, 1e-9)
	assert.InDelta(t, 20.0, sig.Reversion.PriceMove, 1e-9)
	assert.True(t, sig.Valid())
}

func TestReversion_CooldownRespected(t *testing.T) {
	ledger, store := newTestLedger(t, 4*time.Hour)
	d := NewReversion(DefaultReversionConfig(), classify.NewDefault(), ledger, zerolog.Nop())
	ctx := context.Background()
	trades := surgeTrades("KXFED-26MAR-T4.50")

	require.Len(t, d.Detect(ctx, Observations{Trades: trades}, testNow), 1)

	at, err := store.Get(ctx, "KXFED-26MAR-T4.50")
	require.NoError(t, err)
	assert.Equal(t, testNow, at)

	// Same batch 30 minutes later is still inside the 4h cooldown.
	later := testNow.Add(30 * time.Minute)
	shifted := make([]domain.Trade, len(trades))
	for i, tr := range trades {
		tr.CreatedAt = tr.CreatedAt.Add(30 * time.Minute)
		shifted[i] = tr
	}
	assert.Empty(t, d.Detect(ctx, Observations{Trades: shifted}, later))

	// After the window expires the ticker is eligible again.
	much := testNow.Add(5 * time.Hour)
	for i := range shifted {
		shifted[i].CreatedAt = trades[i].CreatedAt.Add(5 * time.Hour)
	}
	assert.Len(t, d.Detect(ctx, Observations{Trades: shifted}, much), 1)
}

func TestReversion_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		ticker string
		mutate func([]domain.Trade) []domain.Trade
	}{
		{
			name:   "sports excluded",
			ticker: "KXNBAGAME-26MAR14-LAL",
			mutate: func(tr []domain.Trade) []domain.Trade { return tr },
		},
		{
			name:   "too few small trades",
			ticker: "KXFED-26MAR-T4.50",
			mutate: func(tr []domain.Trade) []domain.Trade {
				for i := 0; i < 10; i++ {
					tr[i].Count = 500
				}
				return tr
			},
		},
		{
			name:   "no dominant side",
			ticker: "KXFED-26MAR-T4.50",
			mutate: func(tr []domain.Trade) []domain.Trade {
				for i := range tr {
					if i%2 == 0 {
						tr[i].TakerSide = domain.SideNo
					} else {
						tr[i].TakerSide = domain.SideYes
					}
				}
				return tr
			},
		},
		{
			name:   "move too small",
			ticker: "KXFED-26MAR-T4.50",
			mutate: func(tr []domain.Trade) []domain.Trade {
				for i := 0; i < 4; i++ {
					tr[i].YesPrice = 45
				}
				return tr
			},
		},
		{
			name:   "end price outside band",
			ticker: "KXFED-26MAR-T4.50",
			mutate: func(tr []domain.Trade) []domain.Trade {
				for i := 16; i < 20; i++ {
					tr[i].YesPrice = 70
				}
				return tr
			},
		},
		{
			name:   "outside trailing window",
			ticker: "KXFED-26MAR-T4.50",
			mutate: func(tr []domain.Trade) []domain.Trade {
				for i := range tr {
					tr[i].CreatedAt = tr[i].CreatedAt.Add(-3 * time.Hour)
				}
				return tr
			},
		},
		{
			name:   "missing timestamps",
			ticker: "KXFED-26MAR-T4.50",
			mutate: func(tr []domain.Trade) []domain.Trade {
				for i := range tr {
					tr[i].CreatedAt = time.Time{}
				}
				return tr
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, _ := newTestLedger(t, 4*time.Hour)
			d := NewReversion(DefaultReversionConfig(), classify.NewDefault(), ledger, zerolog.Nop())
			trades := tt.mutate(surgeTrades(tt.ticker))
			assert.Empty(t, d.Detect(context.Background(), Observations{Trades: trades}, testNow))
		})
	}
}

func TestReversion_SellOffIgnoredWhenSellOnly(t *testing.T) {
	trades := surgeTrades("KXFED-26MAR-T4.50")
	for i := range trades {
		trades[i].TakerSide = trades[i].TakerSide.Opposite()
		trades[i].YesPrice = 100 - trades[i].YesPrice
	}

	ledger, _ := newTestLedger(t, 4*time.Hour)
	d := NewReversion(DefaultReversionConfig(), classify.NewDefault(), ledger, zerolog.Nop())
	assert.Empty(t, d.Detect(context.Background(), Observations{Trades: trades}, testNow))

	cfg := DefaultReversionConfig()
	cfg.SellOnly = false
	cfg.EntryMin, cfg.EntryMax = 30, 60
	ledger2, _ := newTestLedger(t, 4*time.Hour)
	d = NewReversion(cfg, classify.NewDefault(), ledger2, zerolog.Nop())
	signals := d.Detect(context.Background(), Observations{Trades: trades}, testNow)
	require.Len(t, signals, 1)
	assert.Equal(t, domain.FadeBuy, signals[0].Action)
	assert.Equal(t, domain.SideYes, signals[0].Side)
	assert.Equal(t, domain.Cents(45), signals[0].TargetPrice)
}

func outcome(event, suffix string, bid, ask domain.Cents) domain.Market {
	return domain.Market{
		Ticker:      event + "-" + suffix,
		EventTicker: event,
		Title:       "Who will win the nomination? " + suffix,
		Status:      domain.MarketActive,
		YesBid:      bid,
		YesAsk:      ask,
	}
}

func TestImplied_OverroundScenario(t *testing.T) {
	ledger, _ := newTestLedger(t, 6*time.Hour)
	d := NewImplied(DefaultImpliedConfig(), classify.NewDefault(), ledger, zerolog.Nop())

	markets := []domain.Market{
		outcome("KXNOM-28", "A", 29, 31),
		outcome("KXNOM-28", "B", 29, 31),
		outcome("KXNOM-28", "C", 24, 26),
		outcome("KXNOM-28", "D", 29, 31),
	}
	signals := d.Detect(context.Background(), Observations{Markets: markets}, testNow)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, "KXNOM-28-A", sig.Ticker)
	assert.Equal(t, "KXNOM-28", sig.EventTicker)
	assert.Equal(t, domain.FadeSell, sig.Action)
	assert.Equal(t, domain.SideNo, sig.Side)
	assert.Equal(t, domain.Cents(70), sig.TargetPrice)
	require.NotNil(t, sig.Implied)
	assert.Equal(t, 4, sig.Implied.Outcomes)
	assert.InDelta(t, 1.15, sig.Implied.ProbabilitySum, 1e-9)
	assert.InDelta(t, 0.15, sig.Implied.Deviation, 1e-9)
}

func TestImplied_UnderroundBuysCheapest(t *testing.T) {
	ledger, _ := newTestLedger(t, 6*time.Hour)
	d := NewImplied(DefaultImpliedConfig(), classify.NewDefault(), ledger, zerolog.Nop())

	markets := []domain.Market{
		outcome("KXNOM-28", "A", 29, 31),
		outcome("KXNOM-28", "B", 19, 21),
		outcome("KXNOM-28", "C", 19, 21),
		{Ticker: "KXNOM-28-D", EventTicker: "KXNOM-28", Title: "D", LastPrice: 20},
	}
	signals := d.Detect(context.Background(), Observations{Markets: markets}, testNow)
	require.Len(t, signals, 1)
	assert.Equal(t, "KXNOM-28-B", signals[0].Ticker)
	assert.Equal(t, domain.FadeBuy, signals[0].Action)
	assert.Equal(t, domain.SideYes, signals[0].Side)
	assert.Equal(t, domain.Cents(20), signals[0].TargetPrice)
	assert.InDelta(t, -0.10, signals[0].Implied.Deviation, 1e-9)
}

func TestImplied_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		markets []domain.Market
	}{
		{
			name: "binary event",
			markets: []domain.Market{
				outcome("KXNOM-28", "A", 59, 61),
				outcome("KXNOM-28", "B", 54, 56),
			},
		},
		{
			name: "deviation above ceiling",
			markets: []domain.Market{
				outcome("KXNOM-28", "A", 44, 46),
				outcome("KXNOM-28", "B", 44, 46),
				outcome("KXNOM-28", "C", 44, 46),
			},
		},
		{
			name: "deviation below floor",
			markets: []domain.Market{
				outcome("KXNOM-28", "A", 33, 35),
				outcome("KXNOM-28", "B", 33, 35),
				outcome("KXNOM-28", "C", 33, 35),
			},
		},
		{
			name: "prop outcome",
			markets: []domain.Market{
				outcome("KXNOM-28", "A", 39, 41),
				outcome("KXNOM-28", "B", 39, 41),
				{Ticker: "KXNOM-28-C", EventTicker: "KXNOM-28", Title: "Total points over 40", YesBid: 39, YesAsk: 41},
			},
		},
		{
			name: "combo family",
			markets: []domain.Market{
				outcome("KXMVESPORTS-1", "A", 39, 41),
				outcome("KXMVESPORTS-1", "B", 39, 41),
				outcome("KXMVESPORTS-1", "C", 39, 41),
			},
		},
		{
			name: "too few priced",
			markets: []domain.Market{
				outcome("KXNOM-28", "A", 59, 61),
				outcome("KXNOM-28", "B", 54, 56),
				outcome("KXNOM-28", "C", 0, 0),
				outcome("KXNOM-28", "D", 1, 1),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, _ := newTestLedger(t, 6*time.Hour)
			d := NewImplied(DefaultImpliedConfig(), classify.NewDefault(), ledger, zerolog.Nop())
			assert.Empty(t, d.Detect(context.Background(), Observations{Markets: tt.markets}, testNow))
		})
	}
}

func TestImplied_CooldownPerEvent(t *testing.T) {
	ledger, _ := newTestLedger(t, 6*time.Hour)
	d := NewImplied(DefaultImpliedConfig(), classify.NewDefault(), ledger, zerolog.Nop())
	ctx := context.Background()
	obs := Observations{Markets: []domain.Market{
		outcome("KXNOM-28", "A", 29, 31),
		outcome("KXNOM-28", "B", 29, 31),
		outcome("KXNOM-28", "C", 24, 26),
		outcome("KXNOM-28", "D", 29, 31),
	}}

	require.Len(t, d.Detect(ctx, obs, testNow), 1)
	assert.True(t, ledger.Active("KXNOM-28", testNow.Add(time.Hour)))
	assert.Empty(t, d.Detect(ctx, obs, testNow.Add(time.Hour)))
	assert.Len(t, d.Detect(ctx, obs, testNow.Add(7*time.Hour)), 1)
}

func mentionMarket(ticker, event string, bid, ask domain.Cents) domain.Market {
	return domain.Market{
		Ticker:      ticker,
		EventTicker: event,
		Title:       "What will the announcers say during the game?",
		Status:      domain.MarketActive,
		YesBid:      bid,
		YesAsk:      ask,
		Volume24h:   1200,
		CloseTime:   testNow.Add(72 * time.Hour),
	}
}

func TestMention_WindowsAndBands(t *testing.T) {
	tests := []struct {
		name       string
		ticker     string
		bid, ask   domain.Cents
		startIn    time.Duration
		wantSignal bool
		wantTarget domain.Cents
	}{
		{name: "default pre-event", ticker: "KXNFLMENTION-26MAR14-TOUCH", bid: 79, ask: 81, startIn: time.Hour, wantSignal: true, wantTarget: 20},
		{name: "default too early", ticker: "KXNFLMENTION-26MAR14-TOUCH", bid: 79, ask: 81, startIn: 2 * time.Hour},
		{name: "default after start", ticker: "KXNFLMENTION-26MAR14-TOUCH", bid: 79, ask: 81, startIn: -10 * time.Minute},
		{name: "no price above band", ticker: "KXNFLMENTION-26MAR14-TOUCH", bid: 59, ask: 61, startIn: time.Hour},
		{name: "no price below band", ticker: "KXNFLMENTION-26MAR14-TOUCH", bid: 97, ask: 99, startIn: time.Hour},
		{name: "live during event", ticker: "KXNCAAMENTION-26MAR14-DUNK", bid: 79, ask: 81, startIn: -time.Hour, wantSignal: true, wantTarget: 20},
		{name: "live before event", ticker: "KXNCAAMENTION-26MAR14-DUNK", bid: 79, ask: 81, startIn: 30 * time.Minute},
		{name: "live band tighter", ticker: "KXNCAAMENTION-26MAR14-DUNK", bid: 71, ask: 73, startIn: -time.Hour},
		{name: "extended day ahead", ticker: "KXTRUMPMENTION-26MAR15-TARIFF", bid: 74, ask: 76, startIn: 20 * time.Hour, wantSignal: true, wantTarget: 25},
		{name: "excluded", ticker: "KXEARNINGSMENTION-26MAR14-AI", bid: 79, ask: 81, startIn: time.Hour},
		{name: "not a mention market", ticker: "KXFED-26MAR-T4.50", bid: 79, ask: 81, startIn: time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, _ := newTestLedger(t, 24*time.Hour)
			d := NewMention(DefaultMentionConfig(), classify.NewDefault(), ledger, zerolog.Nop())
			event := "EV-" + tt.ticker
			obs := Observations{
				Markets:     []domain.Market{mentionMarket(tt.ticker, event, tt.bid, tt.ask)},
				Milestones:  map[string]domain.Milestone{event: {EventTicker: event, Start: testNow.Add(tt.startIn)}},
				EventVolume: map[string]domain.EventVolume{event: {Volume24h: 5000, Velocity: 12.5}},
			}
			signals := d.Detect(context.Background(), obs, testNow)
			if !tt.wantSignal {
				assert.Empty(t, signals)
				return
			}
			require.Len(t, signals, 1)
			sig := signals[0]
			assert.Equal(t, domain.SideNo, sig.Side)
			assert.Equal(t, tt.wantTarget, sig.TargetPrice)
			require.NotNil(t, sig.Mention)
			assert.Equal(t, int64(5000), sig.Mention.EventVolume24h)
			assert.InDelta(t, 12.5, sig.Mention.EventVelocity, 1e-9)
			assert.InDelta(t, tt.startIn.Hours(), sig.Mention.HoursToEvent, 1e-9)
			assert.Equal(t, tt.startIn <= 0, sig.Mention.EventLive)
			assert.Equal(t, testNow.Add(72*time.Hour), sig.CloseTime)
		})
	}
}

func TestMention_RequiresMilestone(t *testing.T) {
	ledger, _ := newTestLedger(t, 24*time.Hour)
	d := NewMention(DefaultMentionConfig(), classify.NewDefault(), ledger, zerolog.Nop())
	obs := Observations{Markets: []domain.Market{mentionMarket("KXNFLMENTION-26MAR14-TOUCH", "EV1", 79, 81)}}
	assert.Empty(t, d.Detect(context.Background(), obs, testNow))
}

func TestMention_CooldownOnlyAfterAcknowledge(t *testing.T) {
	ledger, store := newTestLedger(t, 24*time.Hour)
	d := NewMention(DefaultMentionConfig(), classify.NewDefault(), ledger, zerolog.Nop())
	ctx := context.Background()
	obs := Observations{
		Markets:    []domain.Market{mentionMarket("KXNFLMENTION-26MAR14-TOUCH", "EV1", 79, 81)},
		Milestones: map[string]domain.Milestone{"EV1": {EventTicker: "EV1", Start: testNow.Add(time.Hour)}},
	}

	signals := d.Detect(ctx, obs, testNow)
	require.Len(t, signals, 1)
	// Not acknowledged: still eligible next scan.
	require.Len(t, d.Detect(ctx, obs, testNow.Add(2*time.Minute)), 1)

	d.Acknowledge(ctx, signals[0], testNow.Add(2*time.Minute))
	_, err := store.Get(ctx, "KXNFLMENTION-26MAR14-TOUCH")
	require.NoError(t, err)
	assert.Empty(t, d.Detect(ctx, obs, testNow.Add(4*time.Minute)))
}

func TestMention_CloseHorizon(t *testing.T) {
	cfg := DefaultMentionConfig()
	cfg.MaxCloseHorizon = 48 * time.Hour
	ledger, _ := newTestLedger(t, 24*time.Hour)
	d := NewMention(cfg, classify.NewDefault(), ledger, zerolog.Nop())
	obs := Observations{
		Markets:    []domain.Market{mentionMarket("KXNFLMENTION-26MAR14-TOUCH", "EV1", 79, 81)},
		Milestones: map[string]domain.Milestone{"EV1": {EventTicker: "EV1", Start: testNow.Add(time.Hour)}},
	}
	assert.Empty(t, d.Detect(context.Background(), obs, testNow))
}

func TestMention_Band(t *testing.T) {
	ledger, _ := newTestLedger(t, 24*time.Hour)
	d := NewMention(DefaultMentionConfig(), classify.NewDefault(), ledger, zerolog.Nop())

	lo, hi := d.Band("KXNCAAMENTION-26MAR14-DUNK", "")
	assert.Equal(t, domain.Cents(5), lo)
	assert.Equal(t, domain.Cents(25), hi)

	_, hi = d.Band("KXNFLMENTION-26MAR14-TOUCH", "")
	assert.Equal(t, domain.Cents(30), hi)
}

func TestLedger_SeedAndWarmStart(t *testing.T) {
	ctx := context.Background()
	ledger, store := newTestLedger(t, 24*time.Hour)

	assert.Equal(t, 2, ledger.Seed(ctx, []string{"A", "B", ""}, testNow))
	assert.Equal(t, 0, ledger.Seed(ctx, []string{"A"}, testNow.Add(time.Hour)))
	at, ok := ledger.Last("A")
	require.True(t, ok)
	assert.Equal(t, testNow, at)

	warm, err := NewLedger(ctx, store, 24*time.Hour, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, warm.Active("B", testNow.Add(23*time.Hour)))
	assert.False(t, warm.Active("B", testNow.Add(25*time.Hour)))
	assert.False(t, warm.Active("C", testNow))
}
