package market

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const missingRank = 999

// Category narrows the dashboard view.
type Category string

const (
	CategoryAll       Category = "all"
	CategoryGainers   Category = "gainers"
	CategoryLosers    Category = "losers"
	CategoryWatchlist Category = "watchlist"
)

// SortKey selects the dashboard ordering.
type SortKey string

const (
	SortRank   SortKey = "rank"
	SortPrice  SortKey = "price"
	SortChange SortKey = "change"
	SortVolume SortKey = "volume"
	SortName   SortKey = "name"
)

// Set is a set of asset identifiers.
type Set map[string]struct{}

// NewSet builds a Set from ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership. A nil Set contains nothing.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Criteria are the user-selected view parameters.
type Criteria struct {
	Search        string
	Category      Category
	FavoritesOnly bool
	Favorites     Set
	Watchlist     Set
	Sort          SortKey
}

// ParseCategory maps user input onto a Category; unknown values mean "all".
func ParseCategory(v string) Category {
	switch c := Category(strings.ToLower(strings.TrimSpace(v))); c {
	case CategoryGainers, CategoryLosers, CategoryWatchlist:
		return c
	default:
		return CategoryAll
	}
}

// ParseSortKey normalises user input. Unknown keys are kept as-is and leave
// the order untouched.
func ParseSortKey(v string) SortKey {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return SortRank
	}
	return SortKey(v)
}

// Apply filters and orders assets. The input slice is not modified and the
// synthetic record, when it survives filtering, is always first.
func Apply(assets []Asset, c Criteria) []Asset {
	search := strings.ToLower(strings.TrimSpace(c.Search))

	out := make([]Asset, 0, len(assets))
	for _, a := range assets {
		if matches(a, c, search) {
			out = append(out, a)
		}
	}

	less := lessFunc(c.Sort)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ComingSoon != out[j].ComingSoon {
			return out[i].ComingSoon
		}
		if less == nil {
			return false
		}
		return less(out[i], out[j])
	})

	return pinSynthetic(out)
}

func matches(a Asset, c Criteria, search string) bool {
	if c.FavoritesOnly && !c.Favorites.Has(a.ID) {
		return false
	}
	if search != "" &&
		!strings.Contains(strings.ToLower(a.Name), search) &&
		!strings.Contains(strings.ToLower(a.Symbol), search) {
		return false
	}

	switch c.Category {
	case CategoryGainers:
		return valueOrZero(a.Change24h).Sign() > 0
	case CategoryLosers:
		return valueOrZero(a.Change24h).Sign() < 0
	case CategoryWatchlist:
		return c.Watchlist.Has(a.ID)
	default:
		return true
	}
}

func lessFunc(key SortKey) func(a, b Asset) bool {
	switch key {
	case SortRank:
		return func(a, b Asset) bool {
			return rankOrDefault(a.MarketCapRank) < rankOrDefault(b.MarketCapRank)
		}
	case SortPrice:
		return func(a, b Asset) bool {
			return valueOrZero(a.CurrentPrice).GreaterThan(valueOrZero(b.CurrentPrice))
		}
	case SortChange:
		return func(a, b Asset) bool {
			return valueOrZero(a.Change24h).GreaterThan(valueOrZero(b.Change24h))
		}
	case SortVolume:
		return func(a, b Asset) bool {
			return valueOrZero(a.TotalVolume).GreaterThan(valueOrZero(b.TotalVolume))
		}
	case SortName:
		col := collate.New(language.English, collate.IgnoreCase)
		return func(a, b Asset) bool {
			return col.CompareString(a.Name, b.Name) < 0
		}
	default:
		return nil
	}
}

// pinSynthetic moves the first synthetic record to index 0 while keeping the
// relative order of everything else.
func pinSynthetic(assets []Asset) []Asset {
	for i, a := range assets {
		if !a.ComingSoon {
			continue
		}
		if i == 0 {
			return assets
		}
		copy(assets[1:i+1], assets[:i])
		assets[0] = a
		return assets
	}
	return assets
}
