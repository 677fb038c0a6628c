package haul

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"

	"github.com/justapithecus/haul/internal/addressing"
	"github.com/justapithecus/haul/internal/presign"
	"github.com/justapithecus/haul/internal/transfer"
)

// Style selects how bucket names are encoded into request URLs.
type Style = addressing.Style

// Addressing styles.
const (
	StyleAuto        = addressing.StyleAuto
	StyleVirtualHost = addressing.StyleVirtualHost
	StylePath        = addressing.StylePath
)

// Aliases for the presign types, so most callers only import haul.
type (
	PresignOptions   = presign.URLOptions
	PresignedRequest = presign.PresignedRequest
	PostOptions      = presign.PostOptions
	PresignedPost    = presign.PresignedPost
)

// Config configures a Client. The zero value targets AWS with the
// default credential chain and default transfer tuning.
type Config struct {
	// Region is the signing region. Empty falls back to the region the
	// credential chain resolves, then to us-east-1.
	Region string

	// Endpoint overrides the service endpoint for S3-compatible
	// services. Empty targets AWS.
	Endpoint string

	// Style selects the bucket addressing convention.
	Style Style

	// Credentials overrides the default chain. Use StaticCredentials
	// for fixed keys.
	Credentials aws.CredentialsProvider

	// HTTPClient overrides the transport used by API calls.
	HTTPClient *http.Client

	// PartSize and Concurrency tune the transfer manager. Zero selects
	// the defaults (8 MiB parts, 5 workers).
	PartSize    int64
	Concurrency int

	// PartMD5 attaches Content-MD5 to every uploaded part.
	PartMD5 bool

	// Checksum, when set, digests every uploaded body and reports the
	// result on UploadResult.
	Checksum Checksum
}

// API is the storage call surface the client depends on. *s3.Client
// satisfies it.
type API interface {
	transfer.API
	s3.ListObjectsV2APIClient
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Client bundles presigning, transfer management, and addressing for
// one bucket namespace. It is safe for concurrent use.
type Client struct {
	api        API
	resolver   *addressing.Resolver
	presigner  *presign.Presigner
	uploader   *transfer.Uploader
	downloader *transfer.Downloader
	checksum   Checksum
	region     string
}

// StaticCredentials returns a provider for fixed keys. The session
// token may be empty.
func StaticCredentials(accessKeyID, secretAccessKey, sessionToken string) aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, sessionToken)
}

// New creates a client. Credentials and region come from cfg when set,
// from the default AWS chain (environment, shared config, IMDS)
// otherwise.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Credentials != nil {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(cfg.Credentials))
	}
	if cfg.HTTPClient != nil {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(cfg.HTTPClient))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	region := awsCfg.Region
	if region == "" {
		region = "us-east-1"
		awsCfg.Region = region
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// Mirror the resolver's style decision so presigned URLs and
		// direct API calls address buckets the same way.
		o.UsePathStyle = cfg.Style == StylePath || (cfg.Style == StyleAuto && cfg.Endpoint != "")
	})

	return newClient(api, awsCfg.Credentials, region, cfg)
}

// newClient wires a client from an already-constructed API surface.
func newClient(api API, creds aws.CredentialsProvider, region string, cfg Config) (*Client, error) {
	resolver, err := addressing.NewResolver(cfg.Endpoint, region, cfg.Style)
	if err != nil {
		return nil, err
	}

	uploader, err := transfer.NewUploader(api, transfer.UploadConfig{
		PartSize:    cfg.PartSize,
		Concurrency: cfg.Concurrency,
		PartMD5:     cfg.PartMD5,
	})
	if err != nil {
		return nil, err
	}
	downloader, err := transfer.NewDownloader(api, transfer.DownloadConfig{
		PartSize:    cfg.PartSize,
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		api:        api,
		resolver:   resolver,
		presigner:  presign.New(resolver, creds, region),
		uploader:   uploader,
		downloader: downloader,
		checksum:   cfg.Checksum,
		region:     region,
	}, nil
}

// -----------------------------------------------------------------------------
// Presigning
// -----------------------------------------------------------------------------

// PresignGet issues a presigned URL for retrieving an object.
func (c *Client) PresignGet(ctx context.Context, bucket, key string, opts PresignOptions) (*PresignedRequest, error) {
	return c.presigner.Get(ctx, bucket, key, opts)
}

// PresignPut issues a presigned URL for uploading an object.
func (c *Client) PresignPut(ctx context.Context, bucket, key string, opts PresignOptions) (*PresignedRequest, error) {
	return c.presigner.Put(ctx, bucket, key, opts)
}

// PresignHead issues a presigned URL for probing an object's metadata.
func (c *Client) PresignHead(ctx context.Context, bucket, key string, opts PresignOptions) (*PresignedRequest, error) {
	return c.presigner.Head(ctx, bucket, key, opts)
}

// PresignDelete issues a presigned URL for deleting an object.
func (c *Client) PresignDelete(ctx context.Context, bucket, key string, opts PresignOptions) (*PresignedRequest, error) {
	return c.presigner.Delete(ctx, bucket, key, opts)
}

// PresignPost issues a presigned POST form for an anonymous browser
// upload constrained by a signed policy.
func (c *Client) PresignPost(ctx context.Context, bucket, key string, opts PostOptions) (*PresignedPost, error) {
	return c.presigner.Post(ctx, bucket, key, opts)
}

// -----------------------------------------------------------------------------
// Transfer
// -----------------------------------------------------------------------------

// UploadOptions controls a single upload.
type UploadOptions struct {
	ContentType string
	Metadata    map[string]string

	// Size is an optional byte-size hint enabling part-size scaling for
	// very large bodies. Ignored when Gzip is set.
	Size int64

	// Gzip compresses the body in flight and marks the object with
	// Content-Encoding: gzip.
	Gzip bool
}

// UploadResult reports a finished upload.
type UploadResult struct {
	ETag  string
	Parts int
	Size  int64

	// Checksum is "<algorithm>:<hex digest>" of the original body when
	// the client has a checksum component, empty otherwise.
	Checksum string
}

// Upload stores an object, going multipart when the body exceeds one
// part. The checksum, when configured, digests the bytes as given,
// before any compression.
func (c *Client) Upload(ctx context.Context, bucket, key string, body io.Reader, opts UploadOptions) (*UploadResult, error) {
	if err := addressing.ValidBucketName(bucket); err != nil {
		return nil, err
	}

	var hasher HashWriter
	if c.checksum != nil {
		hasher = c.checksum.NewHasher()
		body = io.TeeReader(body, hasher)
	}

	size := opts.Size
	var contentEncoding string
	if opts.Gzip {
		body = gzipReader(body)
		contentEncoding = "gzip"
		size = 0 // compressed size is unknown ahead of time
	}

	out, err := c.uploader.Upload(ctx, &transfer.UploadInput{
		Bucket:          bucket,
		Key:             key,
		Body:            body,
		Size:            size,
		ContentType:     opts.ContentType,
		ContentEncoding: contentEncoding,
		Metadata:        opts.Metadata,
	})
	if err != nil {
		return nil, err
	}

	result := &UploadResult{ETag: out.ETag, Parts: out.Parts, Size: out.Size}
	if hasher != nil {
		result.Checksum = c.checksum.Name() + ":" + hasher.Sum()
	}
	return result, nil
}

// Download fetches an object into w, going through concurrent ranged
// reads for large objects. Returns the number of bytes written.
func (c *Client) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	if err := addressing.ValidBucketName(bucket); err != nil {
		return 0, err
	}

	n, err := c.downloader.Download(ctx, w, &transfer.DownloadInput{Bucket: bucket, Key: key})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("download %s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return 0, err
	}
	return n, nil
}

// gzipReader compresses r in flight through a pipe, keeping memory
// bounded regardless of body size.
func gzipReader(r io.Reader) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		gz := gzip.NewWriter(pw)
		_, err := io.Copy(gz, r)
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()
	return pr
}

// -----------------------------------------------------------------------------
// Object operations
// -----------------------------------------------------------------------------

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Stat returns an object's metadata, or ErrObjectNotFound.
func (c *Client) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	if err := addressing.ValidBucketName(bucket); err != nil {
		return ObjectInfo{}, err
	}

	head, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, fmt.Errorf("stat %s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return ObjectInfo{}, fmt.Errorf("head object: %w", err)
	}

	return ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(head.ContentLength),
		ETag:         aws.ToString(head.ETag),
		ContentType:  aws.ToString(head.ContentType),
		LastModified: aws.ToTime(head.LastModified),
	}, nil
}

// Delete removes an object. Deleting a missing object is not an error;
// the service treats it as a no-op and so does this method.
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	if err := addressing.ValidBucketName(bucket); err != nil {
		return err
	}

	if _, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// List returns an iterator over the objects under a prefix. Pass an
// empty prefix for the whole bucket. The caller should Close the
// iterator and check Err after the loop.
func (c *Client) List(ctx context.Context, bucket, prefix string) ObjectIterator {
	return newListIterator(ctx, c.api, bucket, prefix)
}
