package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// fakeS3 is an in-memory API implementation recording call counts and
// injecting failures on demand.
type fakeS3 struct {
	mu sync.Mutex

	objects map[string][]byte      // "bucket/key" -> data
	uploads map[string]*fakeUpload // upload ID -> state
	nextID  int

	putCalls      int
	createCalls   int
	partCalls     int
	completeCalls int
	abortCalls    int
	headCalls     int
	getCalls      int

	// partFailures maps part number to the count of failures to inject
	// before letting the part through.
	partFailures map[int32]int
	partFailErr  error

	// getFailures fails that many GetObject calls before succeeding.
	getFailures int
	getFailErr  error

	// getTruncate, when positive, cuts whole-object GET bodies to that
	// many bytes, simulating a stream dropped mid-transfer.
	getTruncate int64

	// putFailures fails that many PutObject calls before succeeding.
	putFailures int
	putFailErr  error
}

type fakeUpload struct {
	bucket, key string
	parts       map[int32][]byte
	aborted     bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:      make(map[string][]byte),
		uploads:      make(map[string]*fakeUpload),
		partFailures: make(map[int32]int),
	}
}

func objKey(bucket, key *string) string {
	return aws.ToString(bucket) + "/" + aws.ToString(key)
}

// apiError builds a service error with the given code, as the SDK would
// surface it.
func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++

	if f.putFailures > 0 {
		f.putFailures--
		return nil, f.putFailErr
	}

	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[objKey(params.Bucket, params.Key)] = data
	return &s3.PutObjectOutput{ETag: aws.String(`"fake-etag"`)}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++

	if f.getFailures > 0 {
		f.getFailures--
		return nil, f.getFailErr
	}

	data, ok := f.objects[objKey(params.Bucket, params.Key)]
	if !ok {
		return nil, apiError("NoSuchKey")
	}

	if params.Range == nil && f.getTruncate > 0 && f.getTruncate < int64(len(data)) {
		data = data[:f.getTruncate]
	}

	if params.Range != nil {
		var start, end int64
		if _, err := fmt.Sscanf(aws.ToString(params.Range), "bytes=%d-%d", &start, &end); err != nil {
			return nil, fmt.Errorf("bad range %q: %w", aws.ToString(params.Range), err)
		}
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		data = data[start : end+1]
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headCalls++

	data, ok := f.objects[objKey(params.Bucket, params.Key)]
	if !ok {
		return nil, apiError("NotFound")
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++

	f.nextID++
	id := "upload-" + strconv.Itoa(f.nextID)
	f.uploads[id] = &fakeUpload{
		bucket: aws.ToString(params.Bucket),
		key:    aws.ToString(params.Key),
		parts:  make(map[int32][]byte),
	}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, params *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.partCalls++

	num := aws.ToInt32(params.PartNumber)
	if remaining := f.partFailures[num]; remaining > 0 {
		f.partFailures[num] = remaining - 1
		return nil, f.partFailErr
	}

	up, ok := f.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, apiError("NoSuchUpload")
	}

	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	up.parts[num] = data
	return &s3.UploadPartOutput{
		ETag: aws.String(fmt.Sprintf(`"part-%d"`, num)),
	}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++

	up, ok := f.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, apiError("NoSuchUpload")
	}

	var buf bytes.Buffer
	var prev int32
	for _, p := range params.MultipartUpload.Parts {
		num := aws.ToInt32(p.PartNumber)
		if num <= prev {
			return nil, apiError("InvalidPartOrder")
		}
		prev = num
		data, ok := up.parts[num]
		if !ok {
			return nil, apiError("InvalidPart")
		}
		buf.Write(data)
	}

	f.objects[up.bucket+"/"+up.key] = buf.Bytes()
	delete(f.uploads, aws.ToString(params.UploadId))
	return &s3.CompleteMultipartUploadOutput{ETag: aws.String(`"multipart-etag"`)}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abortCalls++

	if up, ok := f.uploads[aws.ToString(params.UploadId)]; ok {
		up.aborted = true
		delete(f.uploads, aws.ToString(params.UploadId))
	}
	return &s3.AbortMultipartUploadOutput{}, nil
}

// Ensure the fake satisfies the manager's API surface.
var _ API = (*fakeS3)(nil)
