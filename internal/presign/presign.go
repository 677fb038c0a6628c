// Package presign generates presigned URLs and presigned POST forms.
//
// A presigned URL authorizes exactly one operation on one object for a
// bounded time, using credentials held by the issuer; the holder of the
// URL needs none. A presigned POST authorizes a browser form upload
// constrained by a signed policy document.
package presign

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/justapithecus/haul/internal/addressing"
	"github.com/justapithecus/haul/internal/sign"
)

// Presigner issues presigned requests for a single region/endpoint.
type Presigner struct {
	resolver *addressing.Resolver
	creds    aws.CredentialsProvider
	region   string

	// now is swappable for deterministic tests.
	now func() time.Time
}

// New creates a presigner. The credentials provider is consulted on
// every call so rotating credentials are picked up.
func New(resolver *addressing.Resolver, creds aws.CredentialsProvider, region string) *Presigner {
	return &Presigner{
		resolver: resolver,
		creds:    creds,
		region:   region,
		now:      time.Now,
	}
}

// URLOptions controls presigned URL generation.
type URLOptions struct {
	// Expires bounds the URL's validity. Zero means 15 minutes; the
	// protocol maximum is 7 days.
	Expires time.Duration

	// ContentType is signed into PUT requests; the uploader must then
	// send the same Content-Type header.
	ContentType string

	// ResponseContentType and ResponseContentDisposition override the
	// corresponding response headers on GET. They ride in the query
	// string and are covered by the signature.
	ResponseContentType        string
	ResponseContentDisposition string
}

// PresignedRequest is a signed, ready-to-send request description.
type PresignedRequest struct {
	Method string
	URL    string

	// SignedHeader lists headers the sender must include verbatim;
	// anything else invalidates the signature.
	SignedHeader http.Header

	ExpiresAt time.Time
}

// Get presigns an object retrieval.
func (p *Presigner) Get(ctx context.Context, bucket, key string, opts URLOptions) (*PresignedRequest, error) {
	return p.presign(ctx, http.MethodGet, bucket, key, opts)
}

// Put presigns an object upload.
func (p *Presigner) Put(ctx context.Context, bucket, key string, opts URLOptions) (*PresignedRequest, error) {
	return p.presign(ctx, http.MethodPut, bucket, key, opts)
}

// Head presigns an object metadata probe.
func (p *Presigner) Head(ctx context.Context, bucket, key string, opts URLOptions) (*PresignedRequest, error) {
	return p.presign(ctx, http.MethodHead, bucket, key, opts)
}

// Delete presigns an object deletion.
func (p *Presigner) Delete(ctx context.Context, bucket, key string, opts URLOptions) (*PresignedRequest, error) {
	return p.presign(ctx, http.MethodDelete, bucket, key, opts)
}

func (p *Presigner) presign(ctx context.Context, method, bucket, key string, opts URLOptions) (*PresignedRequest, error) {
	expires, err := sign.ValidateExpiry(opts.Expires)
	if err != nil {
		return nil, err
	}

	u, err := p.resolver.ObjectURL(bucket, key)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	if opts.ResponseContentType != "" {
		q.Set("response-content-type", opts.ResponseContentType)
	}
	if opts.ResponseContentDisposition != "" {
		q.Set("response-content-disposition", opts.ResponseContentDisposition)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}

	creds, err := p.creds.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieve credentials: %w", err)
	}

	now := p.now()
	signedURL, signedHeader, err := sign.PresignURL(ctx, creds, req, p.region, expires, now)
	if err != nil {
		return nil, err
	}

	return &PresignedRequest{
		Method:       method,
		URL:          signedURL,
		SignedHeader: signedHeader,
		ExpiresAt:    now.UTC().Add(expires),
	}, nil
}
