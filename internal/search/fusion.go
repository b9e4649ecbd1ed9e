package search

import (
	"sort"

	"github.com/mnemolite/mnemolite/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// the widely validated choice.
const DefaultRRFConstant = 60

// fuser combines lexical and vector candidate lists with reciprocal-
// rank fusion: score(d) = Σ_list weight_list / (k + rank_list(d)),
// summing over the lists d appears in, ranks 1-indexed.
type fuser struct {
	k int
}

func newFuser(k int) *fuser {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &fuser{k: k}
}

// fuse merges the two candidate lists into one deduplicated, scored,
// deterministically ordered result list. Candidates are keyed by chunk
// id, so a chunk in both lists contributes once with both ranks.
func (f *fuser) fuse(lexical, vector []store.SearchCandidate, w Weights) []Result {
	if len(lexical) == 0 && len(vector) == 0 {
		return []Result{}
	}

	merged := make(map[string]*Result, len(lexical)+len(vector))

	for rank, c := range lexical {
		r := f.entry(merged, c)
		r.LexicalScore = c.Score
		r.LexicalRank = rank + 1
		r.Score += w.Lexical / float64(f.k+rank+1)
	}
	for rank, c := range vector {
		r := f.entry(merged, c)
		r.VectorScore = c.Score
		r.VectorRank = rank + 1
		r.Score += w.Vector / float64(f.k+rank+1)
	}

	results := make([]Result, 0, len(merged))
	for _, r := range merged {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		return compareResults(&results[i], &results[j])
	})
	normalize(results)
	return results
}

func (f *fuser) entry(m map[string]*Result, c store.SearchCandidate) *Result {
	key := c.ChunkID.String()
	if r, ok := m[key]; ok {
		return r
	}
	r := &Result{
		ChunkID:       c.ChunkID,
		Repository:    c.Repository,
		FilePath:      c.FilePath,
		Language:      c.Language,
		Kind:          c.Kind,
		Name:          c.Name,
		QualifiedName: c.QualifiedName,
		StartLine:     c.StartLine,
		EndLine:       c.EndLine,
		SourceCode:    c.SourceCode,
		Metadata:      c.Metadata,
	}
	m[key] = r
	return r
}

// compareResults orders a before b. Deterministic across runs so cached
// and recomputed lists agree: fused score, then presence in both lists,
// then lexical score, then chunk id.
func compareResults(a, b *Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	aBoth := a.LexicalRank > 0 && a.VectorRank > 0
	bBoth := b.LexicalRank > 0 && b.VectorRank > 0
	if aBoth != bBoth {
		return aBoth
	}
	if a.LexicalScore != b.LexicalScore {
		return a.LexicalScore > b.LexicalScore
	}
	return a.ChunkID.String() < b.ChunkID.String()
}

// normalize scales fused scores so the top result reads 1.0. Ordering
// is already fixed; this only makes scores comparable across queries.
func normalize(results []Result) {
	if len(results) == 0 {
		return
	}
	max := results[0].Score
	if max == 0 {
		return
	}
	for i := range results {
		results[i].Score /= max
	}
}
