package quant

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalar8RoundTrip(t *testing.T) {
	q := NewScalar8(4)
	require.NoError(t, q.Fit(context.Background(), nil, nil))
	vec := []float32{1, 2, 3, 4}
	code, err := q.Encode(vec)
	require.NoError(t, err)
	decoded, err := q.Decode(code)
	require.NoError(t, err)
	for i := range vec {
		require.InDelta(t, vec[i], decoded[i], 0.05)
	}
}

func TestScalar8ConstantVector(t *testing.T) {
	q := NewScalar8(3)
	require.NoError(t, q.Fit(context.Background(), nil, nil))
	vec := []float32{5, 5, 5}
	code, err := q.Encode(vec)
	require.NoError(t, err)
	decoded, err := q.Decode(code)
	require.NoError(t, err)
	for _, v := range decoded {
		require.Equal(t, float32(5), v)
	}
}

func TestBinary1ConstantVectorNonDegenerate(t *testing.T) {
	q := NewBinary1(4)
	require.NoError(t, q.Fit(context.Background(), nil, nil))
	vec := []float32{3, 3, 3, 3}
	code, err := q.Encode(vec)
	require.NoError(t, err)
	decoded, err := q.Decode(code)
	require.NoError(t, err)
	require.Equal(t, []float32{1, -1, 1, -1}, decoded)
}

func TestBinary1DistanceIsHamming(t *testing.T) {
	q := NewBinary1(4)
	require.NoError(t, q.Fit(context.Background(), nil, nil))
	a, _ := q.Encode([]float32{1, 1, -1, -1})
	table, err := q.BuildQueryTable([]float32{1, -1, -1, -1})
	require.NoError(t, err)
	d, err := q.Distance(a, table)
	require.NoError(t, err)
	require.Equal(t, float32(1), d)
}

func TestProductQuantizerDeterministicGivenSeed(t *testing.T) {
	cfg := &Config{Type: PQ, Subspaces: 2, Centroids: 4, Iterations: 20, Seed: 42}
	samples := make([][]float32, 20)
	r := rand.New(rand.NewSource(1))
	for i := range samples {
		samples[i] = []float32{r.Float32(), r.Float32(), r.Float32(), r.Float32()}
	}

	q1, err := NewProduct(4, cfg)
	require.NoError(t, err)
	require.NoError(t, q1.Fit(context.Background(), samples, rand.New(rand.NewSource(cfg.Seed))))

	q2, err := NewProduct(4, cfg)
	require.NoError(t, err)
	require.NoError(t, q2.Fit(context.Background(), samples, rand.New(rand.NewSource(cfg.Seed))))

	code1, err := q1.Encode(samples[0])
	require.NoError(t, err)
	code2, err := q2.Encode(samples[0])
	require.NoError(t, err)
	require.Equal(t, code1, code2)
}

func TestProductQuantizerDistanceTable(t *testing.T) {
	cfg := &Config{Type: PQ, Subspaces: 2, Centroids: 4, Iterations: 20}
	samples := make([][]float32, 16)
	r := rand.New(rand.NewSource(7))
	for i := range samples {
		samples[i] = []float32{r.Float32(), r.Float32(), r.Float32(), r.Float32()}
	}
	q, err := NewProduct(4, cfg)
	require.NoError(t, err)
	require.NoError(t, q.Fit(context.Background(), samples, rand.New(rand.NewSource(0))))

	code, err := q.Encode(samples[0])
	require.NoError(t, err)
	table, err := q.BuildQueryTable(samples[0])
	require.NoError(t, err)
	d, err := q.Distance(code, table)
	require.NoError(t, err)
	require.GreaterOrEqual(t, d, float32(0))
}

func TestSelectStrategy(t *testing.T) {
	require.Equal(t, None, Select(128, 100, 1<<30))
	require.Equal(t, Scalar8, Select(128, 1_000_000, 200_000_000))
	require.Equal(t, PQ, Select(128, 10_000_000, 1_000_000))
}
