package quadrature

import "sync"

// blockPool holds reusable sample blocks of blockSize values. Estimations run
// concurrently in the server and batch runner, so the pool must be safe for
// concurrent use.
var blockPool = sync.Pool{
	New: func() interface{} {
		b := make([]float64, blockSize)
		return &b
	},
}

// getBlock returns a block with at least n values, n <= blockSize.
func getBlock(n int) *[]float64 {
	b := blockPool.Get().(*[]float64)
	*b = (*b)[:n]
	return b
}

// putBlock returns b to the pool.
func putBlock(b *[]float64) {
	*b = (*b)[:cap(*b)]
	blockPool.Put(b)
}
