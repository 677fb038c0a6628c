package presign

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/justapithecus/haul/internal/sign"
)

// filenamePlaceholder in a key is substituted by the browser with the
// name of the chosen file at upload time.
const filenamePlaceholder = "${filename}"

// PostOptions controls presigned POST generation.
type PostOptions struct {
	// Expires bounds the policy's validity. Zero means 15 minutes.
	Expires time.Duration

	// Fields are exact-match form fields (e.g. Content-Type,
	// success_action_status). Each becomes both a form field and an
	// eq condition in the policy.
	Fields map[string]string

	// StartsWith maps form fields to required value prefixes. These
	// become policy conditions only; the uploader supplies the values.
	StartsWith map[string]string

	// MinSize and MaxSize bound the file size in bytes. A MaxSize of
	// zero disables the bound.
	MinSize int64
	MaxSize int64
}

// PresignedPost is everything a client needs to perform an anonymous
// form upload: the form action URL and the fields to submit with it.
type PresignedPost struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// Post builds a presigned POST for an anonymous upload to bucket/key.
//
// A key containing "${filename}" produces a starts-with condition on the
// portion before the placeholder, letting the browser substitute the
// local file name; any other key is matched exactly.
func (p *Presigner) Post(ctx context.Context, bucket, key string, opts PostOptions) (*PresignedPost, error) {
	expires, err := sign.ValidateExpiry(opts.Expires)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("post: key is required")
	}
	if opts.MaxSize > 0 && opts.MinSize > opts.MaxSize {
		return nil, fmt.Errorf("post: min size %d exceeds max size %d", opts.MinSize, opts.MaxSize)
	}

	postURL, err := p.resolver.BucketURL(bucket)
	if err != nil {
		return nil, err
	}

	creds, err := p.creds.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieve credentials: %w", err)
	}

	now := p.now().UTC()
	policy := sign.NewPostPolicy(now.Add(expires))

	// The bucket is matched by policy but derived from the URL, so it
	// has no form field.
	policy.Match("bucket", bucket)

	fields := map[string]string{"key": key}
	if i := strings.Index(key, filenamePlaceholder); i >= 0 {
		policy.StartsWith("key", key[:i])
	} else {
		policy.Match("key", key)
	}

	for _, field := range sortedKeys(opts.Fields) {
		policy.Match(field, opts.Fields[field])
		fields[field] = opts.Fields[field]
	}
	for _, field := range sortedKeys(opts.StartsWith) {
		policy.StartsWith(field, opts.StartsWith[field])
	}
	if opts.MaxSize > 0 {
		policy.ContentLengthRange(opts.MinSize, opts.MaxSize)
	}

	credential := creds.AccessKeyID + "/" + sign.Scope(now, p.region)
	amzDate := sign.AmzDate(now)

	policy.Match("x-amz-algorithm", sign.Algorithm)
	policy.Match("x-amz-credential", credential)
	policy.Match("x-amz-date", amzDate)
	if creds.SessionToken != "" {
		policy.Match("x-amz-security-token", creds.SessionToken)
	}

	policyB64, err := policy.Base64()
	if err != nil {
		return nil, err
	}

	fields["policy"] = policyB64
	fields["x-amz-algorithm"] = sign.Algorithm
	fields["x-amz-credential"] = credential
	fields["x-amz-date"] = amzDate
	if creds.SessionToken != "" {
		fields["x-amz-security-token"] = creds.SessionToken
	}
	fields["x-amz-signature"] = sign.SignPolicy(creds.SecretAccessKey, now, p.region, policyB64)

	return &PresignedPost{URL: postURL.String(), Fields: fields}, nil
}

// sortedKeys keeps policy condition order deterministic across calls.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
