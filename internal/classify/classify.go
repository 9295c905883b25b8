// Package classify maps markets to coarse categories used by detectors to
// include or exclude them.
package classify

import "strings"

// Category is a market classification.
type Category string

const (
	General    Category = "general"
	Sports     Category = "sports"
	Crypto     Category = "crypto"
	Financials Category = "financials"
	Combo      Category = "combo"

	// Prop markets are independent side bets (spreads, totals, halves) grouped under one event.
	Prop Category = "prop"
	// Independent markets have non-exclusive outcomes judged from the title (speeches, broadcasts).
	Independent Category = "independent"

	// Mention markets resolve on whether a phrase is said during a live event.
	Mention         Category = "mention"
	MentionLive     Category = "mention_live"
	MentionExtended Category = "mention_extended"
	MentionExcluded Category = "mention_excluded"
)

// IsMention reports whether c is any mention category.
func (c Category) IsMention() bool {
	return c == Mention || c == MentionLive || c == MentionExtended || c == MentionExcluded
}

// Classifier classifies a market from its ticker and title.
type Classifier interface {
	Classify(ticker, title string) Category
}

// Set is a set of categories.
type Set map[Category]struct{}

// NewSet builds a Set from categories.
func NewSet(cats ...Category) Set {
	s := make(Set, len(cats))
	for _, c := range cats {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether c is in the set.
func (s Set) Has(c Category) bool {
	_, ok := s[c]
	return ok
}

// Rules configures a Keyword classifier.
// Prefix and substring matches are case-insensitive.
type Rules struct {
	// Ticker substrings marking mention markets, checked first.
	MentionMarkers  []string `yaml:"mention_markers"`
	// Mention sub-categories by ticker substring.
	MentionLive     []string `yaml:"mention_live"`
	MentionExtended []string `yaml:"mention_extended"`
	MentionExcluded []string `yaml:"mention_excluded"`

	ComboPrefixes      []string `yaml:"combo_prefixes"`
	CryptoPrefixes     []string `yaml:"crypto_prefixes"`
	FinancialsPrefixes []string `yaml:"financials_prefixes"`
	SportsPrefixes     []string `yaml:"sports_prefixes"`

	// Title keywords marking prop markets.
	PropKeywords        []string `yaml:"prop_keywords"`
	// Title keywords marking non-exclusive (independent outcome) markets.
	IndependentKeywords []string `yaml:"independent_keywords"`
}

// Keyword classifies by ticker prefix and title keyword tables.
type Keyword struct {
	rules Rules
}

// NewKeyword creates a Keyword classifier. Rule strings are normalized once.
func NewKeyword(rules Rules) *Keyword {
	up := func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = strings.ToUpper(s)
		}
		return out
	}
	low := func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = strings.ToLower(s)
		}
		return out
	}
	return &Keyword{rules: Rules{
		MentionMarkers:      up(rules.MentionMarkers),
		MentionLive:         up(rules.MentionLive),
		MentionExtended:     up(rules.MentionExtended),
		MentionExcluded:     up(rules.MentionExcluded),
		ComboPrefixes:       up(rules.ComboPrefixes),
		CryptoPrefixes:      up(rules.CryptoPrefixes),
		FinancialsPrefixes:  up(rules.FinancialsPrefixes),
		SportsPrefixes:      up(rules.SportsPrefixes),
		PropKeywords:        low(rules.PropKeywords),
		IndependentKeywords: low(rules.IndependentKeywords),
	}}
}

// NewDefault creates a Keyword classifier with DefaultRules.
func NewDefault() *Keyword {
	return NewKeyword(DefaultRules())
}

// Classify implements Classifier.
func (k *Keyword) Classify(ticker, title string) Category {
	t := strings.ToUpper(ticker)

	if containsAny(t, k.rules.MentionMarkers) {
		switch {
		case containsAny(t, k.rules.MentionExcluded):
			return MentionExcluded
		case containsAny(t, k.rules.MentionLive):
			return MentionLive
		case containsAny(t, k.rules.MentionExtended):
			return MentionExtended
		default:
			return Mention
		}
	}

	// Combo families overlap sports prefixes (KXMVESPORTS) so they go first.
	switch {
	case hasAnyPrefix(t, k.rules.ComboPrefixes):
		return Combo
	case hasAnyPrefix(t, k.rules.CryptoPrefixes):
		return Crypto
	case hasAnyPrefix(t, k.rules.FinancialsPrefixes):
		return Financials
	case hasAnyPrefix(t, k.rules.SportsPrefixes):
		return Sports
	}

	if title != "" {
		lt := strings.ToLower(title)
		if containsAny(lt, k.rules.IndependentKeywords) {
			return Independent
		}
		if containsAny(lt, k.rules.PropKeywords) {
			return Prop
		}
	}
	return General
}

// FromExchange maps an exchange-provided event category to a Category.
// Returns General for unknown values.
func FromExchange(category string) Category {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "sports":
		return Sports
	case "crypto":
		return Crypto
	case "financials":
		return Financials
	default:
		return General
	}
}

var _ Classifier = (*Keyword)(nil)

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
