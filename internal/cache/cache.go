// Package cache implements the two-layer chunk cache: a byte-bounded
// in-process LRU (L1) in front of a shared Redis tier (L2), orchestrated
// by the Cascade. L1 is exact and cannot fail; L2 is best-effort and the
// system stays correct with it cold. Entries are keyed by file path and
// content fingerprint, so a read can never observe chunks for content
// that changed underneath it.
package cache

// L1Stats reports the in-process cache counters.
type L1Stats struct {
	Type        string  `json:"type"`
	SizeBytes   int64   `json:"size_bytes"`
	MaxBytes    int64   `json:"max_bytes"`
	Entries     int     `json:"entries"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Evictions   int64   `json:"evictions"`
	Utilization float64 `json:"utilization"`
}

// L2Stats reports the shared cache counters. Connected reflects a live
// ping at collection time; Errors counts transport failures since boot.
type L2Stats struct {
	Type      string  `json:"type"`
	Entries   int64   `json:"entries"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Errors    int64   `json:"errors"`
	Connected bool    `json:"connected"`
}

// CascadeStats merges both layers. CombinedHitRate is the probability a
// read was served from cache at all: H1 + (1-H1)*H2.
type CascadeStats struct {
	L1              L1Stats  `json:"l1"`
	L2              *L2Stats `json:"l2,omitempty"`
	CombinedHitRate float64  `json:"combined_hit_rate"`
}
