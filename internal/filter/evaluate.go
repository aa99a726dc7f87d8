package filter

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
	"golang.org/x/sync/errgroup"
)

// Candidate is one item under evaluation. Values holds only the values that
// are reachable for the item; anything else counts as missing.
type Candidate struct {
	ItemID uuid.UUID
	TagIDs []uuid.UUID
	Values map[uuid.UUID]facet.FieldValue
}

// Evaluator applies predicates to candidate lists, fanning out over chunks
// once the list is large enough.
type Evaluator struct {
	parallelism int
	threshold   int
	chunkSize   int
}

func NewEvaluator(cfg facet.FilterConfig) *Evaluator {
	e := &Evaluator{
		parallelism: cfg.Parallelism,
		threshold:   cfg.ParallelThreshold,
		chunkSize:   cfg.ChunkSize,
	}
	if e.parallelism <= 0 {
		e.parallelism = 1
	}
	if e.chunkSize <= 0 {
		e.chunkSize = 256
	}
	return e
}

// Evaluate returns the positions in candidates that satisfy p and carry at
// least one of tagIDs. An empty tagIDs means no tag restriction.
func (e *Evaluator) Evaluate(ctx context.Context, p *Predicate, tagIDs []uuid.UUID, candidates []Candidate) (*roaring.Bitmap, error) {
	matched, err := e.matchFields(ctx, p, candidates)
	if err != nil {
		return nil, err
	}
	if len(tagIDs) == 0 {
		return matched, nil
	}
	return roaring.And(matched, tagBitmap(tagIDs, candidates)), nil
}

func (e *Evaluator) matchFields(ctx context.Context, p *Predicate, candidates []Candidate) (*roaring.Bitmap, error) {
	n := len(candidates)
	if n == 0 {
		return roaring.New(), nil
	}

	if e.parallelism == 1 || n < e.threshold {
		bm := roaring.New()
		for start := 0; start < n; start += e.chunkSize {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			matchRange(p, candidates, start, min(start+e.chunkSize, n), bm)
		}
		return bm, nil
	}

	chunks := (n + e.chunkSize - 1) / e.chunkSize
	partial := make([]*roaring.Bitmap, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for c := 0; c < chunks; c++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := c * e.chunkSize
			bm := roaring.New()
			matchRange(p, candidates, start, min(start+e.chunkSize, n), bm)
			partial[c] = bm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return roaring.FastOr(partial...), nil
}

func matchRange(p *Predicate, candidates []Candidate, start, end int, bm *roaring.Bitmap) {
	for i := start; i < end; i++ {
		if p.Match(candidates[i].Values) {
			bm.Add(uint32(i))
		}
	}
}

// tagBitmap is the union over tagIDs of the candidates carrying each tag.
func tagBitmap(tagIDs []uuid.UUID, candidates []Candidate) *roaring.Bitmap {
	wanted := make(map[uuid.UUID]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		wanted[id] = struct{}{}
	}
	bm := roaring.New()
	for i, c := range candidates {
		for _, id := range c.TagIDs {
			if _, ok := wanted[id]; ok {
				bm.Add(uint32(i))
				break
			}
		}
	}
	return bm
}

// Select maps matched positions back to item ids, preserving candidate order.
func Select(candidates []Candidate, matched *roaring.Bitmap) []uuid.UUID {
	ids := make([]uuid.UUID, 0, matched.GetCardinality())
	it := matched.Iterator()
	for it.HasNext() {
		ids = append(ids, candidates[it.Next()].ItemID)
	}
	return ids
}
