package quant

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// productQuantizer implements Product Quantization: the vector is split into
// M equal subspaces, each with its own K=256-centroid codebook trained by
// Lloyd's algorithm. Encoded size is M bytes (one centroid index per
// subspace). Training is deterministic given the caller's seeded *rand.Rand
// and runs Config.Iterations Lloyd iterations (20 when unset); a sample of
// fewer than K vectors trains only as many centroids as there are samples.
type productQuantizer struct {
	dimension  int
	subspaces  int
	subDim     int
	centroids  int
	iterations int

	codebooks [][][]float32 // [subspace][centroid][subDim]
	trained   bool
}

// NewProduct returns a PQ quantizer for the given dimension and config.
func NewProduct(dimension int, cfg *Config) (Quantizer, error) {
	if cfg.Subspaces <= 0 || dimension%cfg.Subspaces != 0 {
		return nil, fmt.Errorf("quant: dimension %d not divisible by subspaces %d", dimension, cfg.Subspaces)
	}
	centroids := cfg.Centroids
	if centroids <= 0 {
		centroids = 256
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = 20
	}
	return &productQuantizer{
		dimension:  dimension,
		subspaces:  cfg.Subspaces,
		subDim:     dimension / cfg.Subspaces,
		centroids:  centroids,
		iterations: iterations,
	}, nil
}

func (q *productQuantizer) Trained() bool { return q.trained }
func (q *productQuantizer) CodeSize() int { return q.subspaces }

func (q *productQuantizer) Fit(ctx context.Context, samples [][]float32, rng *rand.Rand) error {
	if len(samples) == 0 {
		return fmt.Errorf("quant: pq requires at least one training sample")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}
	q.codebooks = make([][][]float32, q.subspaces)
	for s := 0; s < q.subspaces; s++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		start := s * q.subDim
		end := start + q.subDim
		sub := make([][]float32, len(samples))
		for i, v := range samples {
			sub[i] = v[start:end]
		}
		book, err := q.trainCodebook(ctx, sub, rng)
		if err != nil {
			return fmt.Errorf("quant: pq subspace %d training failed: %w", s, err)
		}
		q.codebooks[s] = book
	}
	q.trained = true
	return nil
}

// trainCodebook runs Lloyd k-means with K centroids, seeded from rng so
// results are reproducible given the same seed and sample ordering. With
// fewer samples than K, K is reduced to the sample count; initial centroids
// are random sample points. Convergence criterion is q.iterations (20 by
// default) or no reassignment.
func (q *productQuantizer) trainCodebook(ctx context.Context, samples [][]float32, rng *rand.Rand) ([][]float32, error) {
	k := q.centroids
	if k > len(samples) {
		k = len(samples)
	}
	dim := len(samples[0])

	centroids := make([][]float32, k)
	perm := rng.Perm(len(samples))
	for i := 0; i < k; i++ {
		centroids[i] = append([]float32(nil), samples[perm[i]]...)
	}

	assignments := make([]int, len(samples))
	for iter := 0; iter < q.iterations; iter++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		changed := false
		for i, vec := range samples {
			best, bestDist := 0, float32(math.MaxFloat32)
			for c, centroid := range centroids {
				d := sqDist(vec, centroid)
				if d < bestDist {
					bestDist = d
					best = c
				}
			}
			if assignments[i] != best {
				changed = true
			}
			assignments[i] = best
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, vec := range samples {
			c := assignments[i]
			counts[c]++
			for d := 0; d < dim; d++ {
				sums[c][d] += float64(vec[d])
			}
		}

		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				centroids[c] = append([]float32(nil), samples[rng.Intn(len(samples))]...)
				changed = true
				continue
			}
			scaled := make([]float64, dim)
			floats.AddScaled(scaled, 1.0/float64(counts[c]), sums[c])
			newCentroid := make([]float32, dim)
			for d := 0; d < dim; d++ {
				newCentroid[d] = float32(scaled[d])
			}
			centroids[c] = newCentroid
		}

		if !changed {
			break
		}
	}
	return centroids, nil
}

func sqDist(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func (q *productQuantizer) Encode(vec []float32) ([]byte, error) {
	if !q.trained {
		return nil, fmt.Errorf("quant: pq not trained")
	}
	if len(vec) != q.dimension {
		return nil, fmt.Errorf("quant: pq expected dimension %d, got %d", q.dimension, len(vec))
	}
	code := make([]byte, q.subspaces)
	for s := 0; s < q.subspaces; s++ {
		start := s * q.subDim
		sub := vec[start : start+q.subDim]
		best, bestDist := 0, float32(math.MaxFloat32)
		for c, centroid := range q.codebooks[s] {
			d := sqDist(sub, centroid)
			if d < bestDist {
				bestDist = d
				best = c
			}
		}
		code[s] = byte(best)
	}
	return code, nil
}

func (q *productQuantizer) Decode(code []byte) ([]float32, error) {
	if !q.trained {
		return nil, fmt.Errorf("quant: pq not trained")
	}
	if len(code) != q.subspaces {
		return nil, fmt.Errorf("quant: pq code size mismatch")
	}
	vec := make([]float32, q.dimension)
	for s, c := range code {
		if int(c) >= len(q.codebooks[s]) {
			return nil, fmt.Errorf("quant: pq invalid code %d for subspace %d", c, s)
		}
		copy(vec[s*q.subDim:(s+1)*q.subDim], q.codebooks[s][c])
	}
	return vec, nil
}

// BuildQueryTable precomputes an M x K table of squared distances from each
// query subvector to each centroid, per §4.B's asymmetric distance design.
func (q *productQuantizer) BuildQueryTable(query []float32) (*Table, error) {
	if !q.trained {
		return nil, fmt.Errorf("quant: pq not trained")
	}
	if len(query) != q.dimension {
		return nil, fmt.Errorf("quant: pq query dimension mismatch")
	}
	values := make([]float32, q.subspaces*q.centroids)
	for s := 0; s < q.subspaces; s++ {
		start := s * q.subDim
		sub := query[start : start+q.subDim]
		for c, centroid := range q.codebooks[s] {
			values[s*q.centroids+c] = sqDist(sub, centroid)
		}
	}
	return &Table{subspaces: q.subspaces, centroids: q.centroids, values: values}, nil
}

// Distance sums the per-subspace looked-up squared distances and returns the
// square root, matching the L2 aggregation rule in §4.B.
func (q *productQuantizer) Distance(code []byte, table *Table) (float32, error) {
	if len(code) != q.subspaces {
		return 0, fmt.Errorf("quant: pq code size mismatch")
	}
	var sum float32
	for s, c := range code {
		sum += table.lookup(s, c)
	}
	return float32(math.Sqrt(float64(sum))), nil
}
