package transfer

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Part sizing constants. The multipart API caps uploads at 10000 parts
// and rejects parts under 5 MiB (except the last).
const (
	MinPartSize        = 5 << 20
	DefaultPartSize    = 8 << 20
	MaxParts           = 10000
	DefaultConcurrency = 5
)

// abortTimeout bounds the cleanup call after a failed upload.
const abortTimeout = 30 * time.Second

// TooManyPartsError indicates a body that cannot fit within the part
// limit at the configured part size.
type TooManyPartsError struct {
	Limit int
}

func (e *TooManyPartsError) Error() string {
	return fmt.Sprintf("upload exceeds %d parts; increase part size or supply a size hint", e.Limit)
}

// UploadConfig configures an Uploader. Zero values select defaults.
type UploadConfig struct {
	// PartSize is the target part size in bytes. Minimum 5 MiB.
	PartSize int64

	// Concurrency is the number of parts uploaded in parallel.
	Concurrency int

	// MaxParts caps the number of parts per upload. The API limit of
	// 10000 also acts as a ceiling.
	MaxParts int

	// LeavePartsOnError skips the abort call after a failed multipart
	// upload, leaving uploaded parts in place for manual recovery.
	LeavePartsOnError bool

	// PartMD5 attaches a Content-MD5 header to every part so the
	// service verifies part integrity on receipt.
	PartMD5 bool
}

// Uploader writes objects through the multipart API.
type Uploader struct {
	api API

	partSize          int64
	concurrency       int
	maxParts          int
	leavePartsOnError bool
	partMD5           bool
}

// NewUploader creates an uploader from config, applying defaults and
// validating bounds.
func NewUploader(api API, cfg UploadConfig) (*Uploader, error) {
	if cfg.PartSize == 0 {
		cfg.PartSize = DefaultPartSize
	}
	if cfg.PartSize < MinPartSize {
		return nil, fmt.Errorf("part size %d below minimum %d", cfg.PartSize, int64(MinPartSize))
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	if cfg.MaxParts == 0 || cfg.MaxParts > MaxParts {
		cfg.MaxParts = MaxParts
	}

	return &Uploader{
		api:               api,
		partSize:          cfg.PartSize,
		concurrency:       cfg.Concurrency,
		maxParts:          cfg.MaxParts,
		leavePartsOnError: cfg.LeavePartsOnError,
		partMD5:           cfg.PartMD5,
	}, nil
}

// UploadInput describes one object to upload.
type UploadInput struct {
	Bucket string
	Key    string

	// Body is read sequentially until exhaustion.
	Body io.Reader

	// Size is an optional hint in bytes. When set, the part size grows
	// as needed so the part count stays within the limit. Zero means
	// unknown.
	Size int64

	ContentType     string
	ContentEncoding string
	Metadata        map[string]string
}

// UploadOutput reports a finished upload.
type UploadOutput struct {
	ETag string

	// UploadID is set only for multipart uploads.
	UploadID string

	// Parts is the number of parts sent; 1 for single-request uploads.
	Parts int

	// Size is the number of body bytes uploaded.
	Size int64
}

// Upload stores an object. Bodies no larger than one part go through a
// single request; everything else is a multipart upload. On failure the
// multipart upload is aborted unless LeavePartsOnError is set.
func (u *Uploader) Upload(ctx context.Context, in *UploadInput) (*UploadOutput, error) {
	if in.Bucket == "" || in.Key == "" {
		return nil, fmt.Errorf("upload: bucket and key are required")
	}
	if in.Body == nil {
		return nil, fmt.Errorf("upload: body is required")
	}

	partSize := u.partSizeFor(in.Size)
	buf := make([]byte, partSize)
	n, err := readFill(in.Body, buf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read body: %w", err)
	}

	// Exhausted within one part: a plain PutObject is enough.
	if int64(n) < partSize || err == io.EOF {
		return u.putObject(ctx, in, buf[:n])
	}

	return u.multipart(ctx, in, partSize, buf[:n])
}

// partSizeFor grows the configured part size so a body of the given
// size fits within the part limit. Growth rounds up to the next MiB.
func (u *Uploader) partSizeFor(size int64) int64 {
	ps := u.partSize
	if size > 0 && size/ps >= int64(u.maxParts) {
		ps = ((size/int64(u.maxParts) >> 20) + 1) << 20
	}
	return ps
}

func (u *Uploader) putObject(ctx context.Context, in *UploadInput, data []byte) (*UploadOutput, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(in.Bucket),
		Key:           aws.String(in.Key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentMD5:    u.contentMD5(data),
	}
	if in.ContentType != "" {
		input.ContentType = aws.String(in.ContentType)
	}
	if in.ContentEncoding != "" {
		input.ContentEncoding = aws.String(in.ContentEncoding)
	}
	if len(in.Metadata) > 0 {
		input.Metadata = in.Metadata
	}

	var out *s3.PutObjectOutput
	err := withRetry(ctx, func() error {
		var err error
		// The reader must rewind between attempts.
		input.Body = bytes.NewReader(data)
		out, err = u.api.PutObject(ctx, input)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}

	return &UploadOutput{
		ETag:  aws.ToString(out.ETag),
		Parts: 1,
		Size:  int64(len(data)),
	}, nil
}

func (u *Uploader) multipart(ctx context.Context, in *UploadInput, partSize int64, first []byte) (*UploadOutput, error) {
	createInput := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(in.Bucket),
		Key:    aws.String(in.Key),
	}
	if in.ContentType != "" {
		createInput.ContentType = aws.String(in.ContentType)
	}
	if in.ContentEncoding != "" {
		createInput.ContentEncoding = aws.String(in.ContentEncoding)
	}
	if len(in.Metadata) > 0 {
		createInput.Metadata = in.Metadata
	}

	created, err := u.api.CreateMultipartUpload(ctx, createInput)
	if err != nil {
		return nil, fmt.Errorf("create multipart upload: %w", err)
	}
	uploadID := aws.ToString(created.UploadId)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type part struct {
		num  int32
		data []byte
	}

	var (
		mu        sync.Mutex
		completed []types.CompletedPart
		firstErr  error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	parts := make(chan part)
	var wg sync.WaitGroup
	for i := 0; i < u.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range parts {
				if ctx.Err() != nil {
					continue // drain after failure
				}
				etag, err := u.uploadPart(ctx, in.Bucket, in.Key, uploadID, p.num, p.data)
				if err != nil {
					fail(fmt.Errorf("upload part %d: %w", p.num, err))
					continue
				}
				mu.Lock()
				completed = append(completed, types.CompletedPart{
					ETag:       aws.String(etag),
					PartNumber: aws.Int32(p.num),
				})
				mu.Unlock()
			}
		}()
	}

	// Produce parts sequentially from the body. Memory held at once is
	// bounded by concurrency+1 part buffers.
	var total int64
	data := first
	num := int32(0)
produce:
	for len(data) > 0 {
		num++
		if int(num) > u.maxParts {
			fail(&TooManyPartsError{Limit: u.maxParts})
			break
		}

		select {
		case parts <- part{num: num, data: data}:
			total += int64(len(data))
		case <-ctx.Done():
			break produce
		}

		next := make([]byte, partSize)
		n, rerr := readFill(in.Body, next)
		if rerr != nil && rerr != io.EOF {
			fail(fmt.Errorf("read body: %w", rerr))
			break
		}
		data = next[:n]
	}
	close(parts)
	wg.Wait()

	// A canceled parent context may stop the pool without any worker
	// recording an error.
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		u.abort(in.Bucket, in.Key, uploadID)
		return nil, firstErr
	}

	sort.Slice(completed, func(i, j int) bool {
		return aws.ToInt32(completed[i].PartNumber) < aws.ToInt32(completed[j].PartNumber)
	})

	finished, err := u.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(in.Bucket),
		Key:             aws.String(in.Key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		u.abort(in.Bucket, in.Key, uploadID)
		return nil, fmt.Errorf("complete multipart upload: %w", err)
	}

	return &UploadOutput{
		ETag:     aws.ToString(finished.ETag),
		UploadID: uploadID,
		Parts:    len(completed),
		Size:     total,
	}, nil
}

func (u *Uploader) uploadPart(ctx context.Context, bucket, key, uploadID string, num int32, data []byte) (string, error) {
	var etag string
	err := withRetry(ctx, func() error {
		out, err := u.api.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			UploadId:      aws.String(uploadID),
			PartNumber:    aws.Int32(num),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentMD5:    u.contentMD5(data),
		})
		if err != nil {
			return err
		}
		etag = aws.ToString(out.ETag)
		return nil
	})
	return etag, err
}

// abort cleans up a failed multipart upload. It runs on a detached
// context so cleanup still happens when the upload's context was
// canceled.
func (u *Uploader) abort(bucket, key, uploadID string) {
	if u.leavePartsOnError {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	_, _ = u.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
}

func (u *Uploader) contentMD5(data []byte) *string {
	if !u.partMD5 {
		return nil
	}
	sum := md5.Sum(data)
	return aws.String(base64.StdEncoding.EncodeToString(sum[:]))
}

// readFill reads until buf is full or the reader is exhausted. A short
// read with io.EOF means the body ended; any other error is real.
func readFill(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}
