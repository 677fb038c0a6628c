// Package sign implements SigV4 presigning for S3 requests.
//
// Query presigning of HTTP requests delegates to the AWS SDK signer; this
// package owns expiry validation, credential-scope formatting, and the
// signing-key derivation shared with POST policy signing. Policy signing
// is implemented here in full because the SDK signer exposes no surface
// for signing anything other than an HTTP request.
package sign

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// Expiry bounds for presigned requests. The SigV4 protocol caps presigned
// URL validity at seven days; anything longer is rejected by the service
// regardless of what the signature says.
const (
	MinExpiry     = time.Second
	MaxExpiry     = 7 * 24 * time.Hour
	DefaultExpiry = 15 * time.Minute
)

// Signing constants.
const (
	Algorithm = "AWS4-HMAC-SHA256"

	service         = "s3"
	requestSuffix   = "aws4_request"
	unsignedPayload = "UNSIGNED-PAYLOAD"
	amzDateFormat   = "20060102T150405Z"
	shortDateFormat = "20060102"
)

// ErrExpiryOutOfRange indicates a requested expiry outside [1s, 7d].
var ErrExpiryOutOfRange = errors.New("expiry out of range")

// ValidateExpiry normalizes a requested expiry. Zero selects the default;
// values outside the protocol bounds are rejected.
func ValidateExpiry(d time.Duration) (time.Duration, error) {
	if d == 0 {
		return DefaultExpiry, nil
	}
	if d < MinExpiry || d > MaxExpiry {
		return 0, fmt.Errorf("%w: %s (allowed: %s to %s)", ErrExpiryOutOfRange, d, MinExpiry, MaxExpiry)
	}
	return d, nil
}

// AmzDate formats a signing time as an X-Amz-Date value.
func AmzDate(t time.Time) string {
	return t.UTC().Format(amzDateFormat)
}

// Scope returns the credential scope for a signing time and region:
// <yyyymmdd>/<region>/s3/aws4_request.
func Scope(t time.Time, region string) string {
	return strings.Join([]string{t.UTC().Format(shortDateFormat), region, service, requestSuffix}, "/")
}

// SigningKey derives the SigV4 signing key for a secret key, signing day,
// and region. The key is valid for any number of signatures within the
// same scope.
func SigningKey(secret string, t time.Time, region string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), []byte(t.UTC().Format(shortDateFormat)))
	k = hmacSHA256(k, []byte(region))
	k = hmacSHA256(k, []byte(service))
	return hmacSHA256(k, []byte(requestSuffix))
}

// SignPolicy signs a base64-encoded POST policy document, returning the
// lowercase hex signature for the x-amz-signature form field.
func SignPolicy(secret string, t time.Time, region, policyB64 string) string {
	return hex.EncodeToString(hmacSHA256(SigningKey(secret, t, region), []byte(policyB64)))
}

// PresignURL signs req as a query-presigned request with an unsigned
// payload. The expiry must already be validated. The request's query
// string gains the X-Amz-Expires parameter before signing so that it is
// covered by the signature.
func PresignURL(ctx context.Context, creds aws.Credentials, req *http.Request, region string, expires time.Duration, now time.Time) (string, http.Header, error) {
	q := req.URL.Query()
	q.Set("X-Amz-Expires", strconv.FormatInt(int64(expires/time.Second), 10))
	req.URL.RawQuery = q.Encode()

	signer := v4.NewSigner()
	signedURL, signedHeader, err := signer.PresignHTTP(ctx, creds, req, unsignedPayload, service, region, now.UTC())
	if err != nil {
		return "", nil, fmt.Errorf("presign request: %w", err)
	}
	return signedURL, signedHeader, nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
