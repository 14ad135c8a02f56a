package station

import (
	"strings"
	"sync/atomic"
)

// mapping ties one raw provider spelling to a canonical station name.
type mapping struct {
	raw        string // as added
	normalized string // lowercased, for the substring scan
	canonical  string
}

// Resolver canonicalizes heterogeneous station names coming from the
// different providers. Lookup order: exact raw match, exact match after
// stripping locale suffixes, then a case-insensitive substring scan over the
// known raw spellings. The scan walks mappings in insertion order, so ties
// resolve to the earliest-added mapping; editing the mapping can change tie
// outcomes and callers must not depend on a specific tie order.
type Resolver struct {
	exact    map[string]string
	ordered  []mapping
	suffixes []string
	force    []string
	drops    atomic.Uint64
}

// localeSuffixes are trailing qualifiers providers append to display names.
var localeSuffixes = []string{", India", ", Karnataka"}

// NewResolver builds a resolver over raw-spelling → canonical-name pairs.
// Pairs are added in order; see Resolver for the tie-break contract.
// Canonical names resolve to themselves: the governmental feed publishes
// them directly, so each canonical spelling gets an identity mapping after
// the raw pairs.
func NewResolver(pairs [][2]string, forceIDs []string) *Resolver {
	r := &Resolver{
		exact:    make(map[string]string, len(pairs)),
		suffixes: localeSuffixes,
		force:    forceIDs,
	}
	for _, p := range pairs {
		r.Add(p[0], p[1])
	}
	for _, p := range pairs {
		if _, ok := r.exact[p[1]]; !ok {
			r.Add(p[1], p[1])
		}
	}
	return r
}

// Add registers a raw spelling for a canonical station name.
func (r *Resolver) Add(raw, canonical string) {
	if _, ok := r.exact[raw]; !ok {
		r.ordered = append(r.ordered, mapping{
			raw:        raw,
			normalized: strings.ToLower(raw),
			canonical:  canonical,
		})
	}
	r.exact[raw] = canonical
}

// Resolve maps a raw provider name to a canonical station name. The second
// return is false when no mapping applies; callers drop the record.
func (r *Resolver) Resolve(rawName string) (string, bool) {
	if c, ok := r.exact[rawName]; ok {
		return c, true
	}

	stripped := r.stripLocale(rawName)
	if c, ok := r.exact[stripped]; ok {
		return c, true
	}

	lower := strings.ToLower(rawName)
	for _, m := range r.ordered {
		if strings.Contains(lower, m.normalized) {
			return m.canonical, true
		}
	}

	r.drops.Add(1)
	return "", false
}

func (r *Resolver) stripLocale(name string) string {
	for _, s := range r.suffixes {
		name = strings.ReplaceAll(name, s, "")
	}
	return strings.TrimSpace(name)
}

// Drops reports how many resolutions have failed since process start.
func (r *Resolver) Drops() uint64 {
	return r.drops.Load()
}

// ForceList returns provider UIDs that are always fetched even when the
// bounding-box scan omits them (stations the scan is known to hide).
func (r *Resolver) ForceList() []string {
	out := make([]string, len(r.force))
	copy(out, r.force)
	return out
}

// DefaultMappings is the maintained raw-spelling table for Bengaluru. The
// canonical names carry the operating agency suffix (CPCB/KSPCB).
func DefaultMappings() [][2]string {
	return [][2]string{
		{"BTM, Bangalore", "BTM Layout, Bengaluru - CPCB"},
		{"Peenya, Bangalore", "Peenya, Bengaluru - CPCB"},
		{"BWSSB Kadabesanahalli, Bengaluru", "BWSSB Kadabesanahalli, Bengaluru - CPCB"},
		{"City Railway Station, Bangalore", "City Railway Station, Bengaluru - KSPCB"},
		{"SaneguravaHalli, Bangalore", "Saneguruvanahalli, Bengaluru - KSPCB"},
		{"Hebbal, Bengaluru", "Hebbal, Bengaluru - KSPCB"},
		{"Hombegowda Nagar, Bengaluru", "Hombegowda Nagar, Bengaluru - KSPCB"},
		{"Jayanagar 5th Block, Bengaluru", "Jayanagar 5th Block, Bengaluru - KSPCB"},
		{"Silk Board, Bengaluru", "Silk Board, Bengaluru - KSPCB"},
		{"Bapuji Nagar, Bengaluru", "Bapuji Nagar, Bengaluru - KSPCB"},
		{"Jigani, Bengaluru", "Jigani, Bengaluru - KSPCB"},
		{"Kasturi Nagar, Bengaluru", "Kasturi Nagar, Bengaluru - KSPCB"},
		{"RVCE-Mailasandra, Bengaluru", "RVCE-Mailasandra, Bengaluru - KSPCB"},
		{"Shivapura_Peenya, Bengaluru", "Peenya, Bengaluru - CPCB"},
	}
}

// DefaultForceIDs are WAQI station UIDs absent from the map scan but known
// to publish feeds.
func DefaultForceIDs() []string {
	return []string{"A568831", "A567850", "A567841"}
}
