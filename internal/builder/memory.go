package builder

import (
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2"
)

// fitInMemory bounds how many items one in-memory build pass touches at
// once. candidates is consumed (the returned ids are removed from it) so
// repeated calls drain the full population across successive random
// samples, keeping a memory-constrained build's resident set bounded.
func fitInMemory(budget int64, candidates *roaring.Bitmap, itemSize, dims int, rng *rand.Rand) *roaring.Bitmap {
	n := candidates.GetCardinality()
	if n == 0 {
		return roaring.New()
	}
	if budget <= 0 || int64(n)*int64(itemSize) <= budget || n < uint64(dims) {
		return takeAll(candidates)
	}

	maxItems := budget / int64(itemSize)
	if maxItems <= 0 || uint64(maxItems) >= n {
		return takeAll(candidates)
	}

	ids := candidates.ToArray()
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	chosen := ids[:maxItems]
	out := roaring.New()
	for _, id := range chosen {
		out.Add(id)
		candidates.Remove(id)
	}
	return out
}

func takeAll(candidates *roaring.Bitmap) *roaring.Bitmap {
	out := candidates.Clone()
	candidates.Clear()
	return out
}
