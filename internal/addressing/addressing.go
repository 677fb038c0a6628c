// Package addressing resolves bucket and object names into request URLs.
//
// S3 exposes two addressing conventions. Virtual-host style encodes the
// bucket in the hostname:
//
//	https://<bucket>.s3.<region>.amazonaws.com/<key>
//
// Path style encodes it as the first path segment:
//
//	https://s3.<region>.amazonaws.com/<bucket>/<key>
//
// The resolver picks between them. The choice matters because presigned
// URLs embed the final URL in the signature: a URL built for the wrong
// style fails signature verification at the service.
package addressing

import (
	"fmt"
	"net/url"
	"strings"
)

// Style selects how the bucket name is encoded into request URLs.
type Style int

const (
	// StyleAuto uses virtual-host addressing when the bucket name allows
	// it and no custom endpoint is configured, path style otherwise.
	StyleAuto Style = iota

	// StyleVirtualHost always encodes the bucket into the hostname.
	StyleVirtualHost

	// StylePath always encodes the bucket as the first path segment.
	StylePath
)

func (s Style) String() string {
	switch s {
	case StyleVirtualHost:
		return "virtual-host"
	case StylePath:
		return "path"
	default:
		return "auto"
	}
}

// Resolver builds request URLs for buckets and objects.
//
// A zero endpoint targets AWS proper, deriving the host from the region.
// A custom endpoint targets an S3-compatible service; auto style then
// falls back to path addressing because such services rarely provision
// wildcard DNS for bucket subdomains.
type Resolver struct {
	endpoint *url.URL // nil means the regional AWS endpoint
	region   string
	style    Style
}

// NewResolver creates a resolver. endpoint may be empty; when set it must
// be an absolute http(s) URL without a path.
func NewResolver(endpoint, region string, style Style) (*Resolver, error) {
	r := &Resolver{region: region, style: style}

	if endpoint != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("endpoint %q: scheme must be http or https", endpoint)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("endpoint %q: missing host", endpoint)
		}
		if u.Path != "" && u.Path != "/" {
			return nil, fmt.Errorf("endpoint %q: must not contain a path", endpoint)
		}
		r.endpoint = &url.URL{Scheme: u.Scheme, Host: u.Host}
	}

	return r, nil
}

// UsesPathStyle reports the effective style decision for a bucket.
func (r *Resolver) UsesPathStyle(bucket string) bool {
	switch r.style {
	case StyleVirtualHost:
		return false
	case StylePath:
		return true
	default:
		return r.endpoint != nil || !DNSCompatible(bucket)
	}
}

// BucketURL returns the base URL for a bucket with a trailing slash,
// suitable as the action URL of a browser POST upload form.
func (r *Resolver) BucketURL(bucket string) (*url.URL, error) {
	return r.ObjectURL(bucket, "")
}

// ObjectURL returns the request URL for an object. The key is encoded
// per RFC 3986 segment by segment; slashes are preserved as delimiters.
// An empty key yields the bucket URL.
func (r *Resolver) ObjectURL(bucket, key string) (*url.URL, error) {
	if err := ValidBucketName(bucket); err != nil {
		return nil, err
	}

	base := r.baseURL()
	u := &url.URL{Scheme: base.Scheme}

	var p string
	if r.UsesPathStyle(bucket) {
		u.Host = base.Host
		p = "/" + bucket + "/" + key
	} else {
		u.Host = bucket + "." + base.Host
		p = "/" + key
	}

	u.Path = p
	if escaped := escapePath(p); escaped != p {
		u.RawPath = escaped
	}

	return u, nil
}

// baseURL returns the configured endpoint, or the regional AWS endpoint
// when none is set.
func (r *Resolver) baseURL() *url.URL {
	if r.endpoint != nil {
		return r.endpoint
	}
	return &url.URL{Scheme: "https", Host: "s3." + r.region + ".amazonaws.com"}
}

// escapePath encodes a URL path per RFC 3986: unreserved characters and
// the slash delimiter pass through, everything else becomes %XX. This is
// stricter than url.PathEscape, which leaves sub-delimiters like '+' and
// '=' alone; those must be escaped or the canonical request used for
// signing will not match what the service reconstructs.
func escapePath(p string) string {
	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~', c == '/':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
