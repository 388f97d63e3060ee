package quadrature

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockPool(t *testing.T) {
	b := getBlock(10)
	assert.Len(t, *b, 10)
	assert.Equal(t, blockSize, cap(*b))

	putBlock(b)
	assert.Len(t, *b, blockSize)
}

func TestLeftSumConcurrent(t *testing.T) {
	f := Func(func(x float64) float64 { return 2 * x })
	want := Left(f, 0, 1, 5000)

	var wg sync.WaitGroup
	results := make([]float64, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Left(f, 0, 1, 5000)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}
