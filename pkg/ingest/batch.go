package ingest

import (
	"errors"
	"fmt"
	"iter"
)

// ErrInvalidBatchSize is returned for batch sizes below one.
var ErrInvalidBatchSize = errors.New("batch size must be at least 1")

// Chunk splits s into contiguous groups of at most size elements. Order and
// element count are preserved and only the last group may be short. The
// groups share s's backing array.
func Chunk[T any](s []T, size int) ([][]T, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, size)
	}
	chunks := make([][]T, 0, (len(s)+size-1)/size)
	for start := 0; start < len(s); start += size {
		end := min(start+size, len(s))
		chunks = append(chunks, s[start:end:end])
	}
	return chunks, nil
}

// Batch groups the values of seq into slices of at most size elements, like
// Chunk but without materializing seq. When seq yields an error, the values
// collected so far are yielded together with that error and iteration ends.
func Batch[T any](seq iter.Seq2[T, error], size int) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		if size < 1 {
			yield(nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, size))
			return
		}
		batch := make([]T, 0, size)
		for v, err := range seq {
			if err != nil {
				yield(batch, err)
				return
			}
			batch = append(batch, v)
			if len(batch) == size {
				if !yield(batch, nil) {
					return
				}
				batch = make([]T, 0, size)
			}
		}
		if len(batch) > 0 {
			yield(batch, nil)
		}
	}
}
