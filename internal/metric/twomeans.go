package metric

import "math/rand"

const twoMeansIterations = 200

// twoMeans is the weighted-centroid heuristic shared by every metric that
// splits by separating two cluster means rather than by bit-sampling
// (Hamming is the one exception; see hamming.go). It keeps two running
// centroids, absorbing a randomly chosen child into whichever centroid it
// is currently closer to, weighted by how many points that centroid has
// already absorbed so neither runs away with the whole sample.
//
// There is no principled derivation for this beyond that it empirically
// produces well-balanced splits; it is the same update rule Annoy uses.
func twoMeans(rng *rand.Rand, m Metric, children []Leaf, cosine bool) (Leaf, Leaf) {
	p, q := chooseTwo(rng, children)
	p = Leaf{Header: append([]byte(nil), p.Header...), Vec: append([]float32(nil), p.Vec...)}
	q = Leaf{Header: append([]byte(nil), q.Header...), Vec: append([]float32(nil), q.Vec...)}

	if cosine {
		p.Vec = m.Normalize(p.Vec)
		q.Vec = m.Normalize(q.Vec)
	}
	p.Header = m.Init(p.Vec)
	q.Header = m.Init(q.Vec)

	ic, jc := float32(1.0), float32(1.0)
	for i := 0; i < twoMeansIterations; i++ {
		k := choose(rng, children)
		di := ic * m.NonBuiltDistance(p.Header, p.Vec, k.Header, k.Vec)
		dj := jc * m.NonBuiltDistance(q.Header, q.Vec, k.Header, k.Vec)

		norm := float32(1.0)
		if cosine {
			norm = m.NormNoHeader(k.Vec)
		}
		if norm != norm || norm <= 0 {
			continue
		}

		switch {
		case di < dj:
			updateMean(&p, k, norm, ic)
			p.Header = m.Init(p.Vec)
			ic++
		case dj < di:
			updateMean(&q, k, norm, jc)
			q.Header = m.Init(q.Vec)
			jc++
		}
	}
	return p, q
}

func updateMean(mean *Leaf, node Leaf, norm, c float32) {
	out := make([]float32, len(mean.Vec))
	for i := range mean.Vec {
		out[i] = (mean.Vec[i]*c + node.Vec[i]/norm) / (c + 1)
	}
	mean.Vec = out
}
