package haul

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectIterator provides sequential access to listed objects.
//
// Iteration contract:
//   - Ordering follows the service's lexicographic listing order
//   - Next() MUST return false after exhaustion or after Close() is called
//   - Close() MUST be idempotent
//   - Err() MAY be called after exhaustion or close
type ObjectIterator interface {
	// Next advances to the next object.
	// Returns true if there is a next object, false if exhausted or closed.
	Next() bool

	// Object returns the current object's metadata.
	// Only valid after Next() returns true.
	Object() ObjectInfo

	// Err returns any error encountered during iteration.
	Err() error

	// Close releases resources held by the iterator.
	// Must be idempotent (safe to call multiple times).
	Close() error
}

// listIterator pages through ListObjectsV2 results on demand. Pages are
// fetched lazily, so iteration cost tracks how far the caller walks.
type listIterator struct {
	ctx       context.Context
	paginator *s3.ListObjectsV2Paginator
	page      []ObjectInfo
	index     int
	current   ObjectInfo
	err       error
	closed    bool
}

// newListIterator creates an iterator over a bucket listing.
func newListIterator(ctx context.Context, api s3.ListObjectsV2APIClient, bucket, prefix string) *listIterator {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	return &listIterator{
		ctx:       ctx,
		paginator: s3.NewListObjectsV2Paginator(api, input),
		index:     -1, // Start before first element
	}
}

// Next advances to the next object, fetching further pages as needed.
// Returns false after exhaustion, a listing error, or Close().
func (it *listIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}

	it.index++
	for it.index >= len(it.page) {
		if !it.paginator.HasMorePages() {
			return false
		}
		page, err := it.paginator.NextPage(it.ctx)
		if err != nil {
			it.err = fmt.Errorf("list objects: %w", err)
			return false
		}

		it.page = it.page[:0]
		for _, obj := range page.Contents {
			it.page = append(it.page, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         aws.ToString(obj.ETag),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		it.index = 0
	}

	it.current = it.page[it.index]
	return true
}

// Object returns the current object's metadata.
// Only valid after Next() returns true.
func (it *listIterator) Object() ObjectInfo {
	return it.current
}

// Err returns any error encountered while fetching pages.
func (it *listIterator) Err() error {
	return it.err
}

// Close releases resources and marks the iterator as closed.
// Idempotent: safe to call multiple times.
func (it *listIterator) Close() error {
	it.closed = true
	it.page = nil
	return nil
}

// Ensure listIterator implements ObjectIterator
var _ ObjectIterator = (*listIterator)(nil)
