package transfer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DownloadConfig configures a Downloader. Zero values select defaults.
type DownloadConfig struct {
	// PartSize is the ranged-read size in bytes.
	PartSize int64

	// Concurrency is the number of ranges fetched in parallel.
	Concurrency int
}

// Downloader reads objects with concurrent ranged requests.
type Downloader struct {
	api         API
	partSize    int64
	concurrency int
}

// NewDownloader creates a downloader from config.
func NewDownloader(api API, cfg DownloadConfig) (*Downloader, error) {
	if cfg.PartSize == 0 {
		cfg.PartSize = DefaultPartSize
	}
	if cfg.PartSize < 1 {
		return nil, fmt.Errorf("part size must be positive, got %d", cfg.PartSize)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}

	return &Downloader{
		api:         api,
		partSize:    cfg.PartSize,
		concurrency: cfg.Concurrency,
	}, nil
}

// DownloadInput describes one object to download.
type DownloadInput struct {
	Bucket string
	Key    string
}

// Download fetches an object into w. The object size comes from a
// HeadObject probe; objects no larger than one part stream through a
// single request, larger ones through concurrent ranged reads written
// at their offsets. Returns the number of bytes written.
func (d *Downloader) Download(ctx context.Context, w io.WriterAt, in *DownloadInput) (int64, error) {
	if in.Bucket == "" || in.Key == "" {
		return 0, fmt.Errorf("download: bucket and key are required")
	}

	head, err := d.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(in.Bucket),
		Key:    aws.String(in.Key),
	})
	if err != nil {
		return 0, fmt.Errorf("head object: %w", err)
	}
	size := aws.ToInt64(head.ContentLength)

	if size <= d.partSize {
		return d.downloadWhole(ctx, w, in, size)
	}
	return d.downloadRanges(ctx, w, in, size)
}

func (d *Downloader) downloadWhole(ctx context.Context, w io.WriterAt, in *DownloadInput, size int64) (int64, error) {
	var written int64
	err := withRetry(ctx, func() error {
		out, err := d.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(in.Bucket),
			Key:    aws.String(in.Key),
		})
		if err != nil {
			return err
		}
		defer func() { _ = out.Body.Close() }()

		n, err := io.Copy(io.NewOffsetWriter(w, 0), out.Body)
		written = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get object: %w", err)
	}
	if written != size {
		return written, fmt.Errorf("short download: wrote %d of %d bytes", written, size)
	}
	return written, nil
}

func (d *Downloader) downloadRanges(ctx context.Context, w io.WriterAt, in *DownloadInput, size int64) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		firstErr error
		written  atomic.Int64
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	offsets := make(chan int64)
	var wg sync.WaitGroup
	for i := 0; i < d.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for start := range offsets {
				if ctx.Err() != nil {
					continue
				}
				end := start + d.partSize
				if end > size {
					end = size
				}
				n, err := d.downloadRange(ctx, w, in, start, end-1)
				if err != nil {
					fail(fmt.Errorf("range %d-%d: %w", start, end-1, err))
					continue
				}
				written.Add(n)
			}
		}()
	}

produce:
	for start := int64(0); start < size; start += d.partSize {
		select {
		case offsets <- start:
		case <-ctx.Done():
			break produce
		}
	}
	close(offsets)
	wg.Wait()

	if firstErr == nil {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		return written.Load(), firstErr
	}
	if got := written.Load(); got != size {
		return got, fmt.Errorf("short download: wrote %d of %d bytes", got, size)
	}
	return size, nil
}

// downloadRange fetches [start, end] (inclusive, per RFC 9110 ranges)
// and writes it at its offset.
func (d *Downloader) downloadRange(ctx context.Context, w io.WriterAt, in *DownloadInput, start, end int64) (int64, error) {
	want := end - start + 1
	var written int64
	err := withRetry(ctx, func() error {
		out, err := d.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(in.Bucket),
			Key:    aws.String(in.Key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
		})
		if err != nil {
			return err
		}
		defer func() { _ = out.Body.Close() }()

		n, err := io.Copy(io.NewOffsetWriter(w, start), out.Body)
		if err != nil {
			return err
		}
		if n != want {
			return fmt.Errorf("short range read: got %d of %d bytes", n, want)
		}
		written = n
		return nil
	})
	return written, err
}
