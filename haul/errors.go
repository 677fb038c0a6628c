package haul

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/justapithecus/haul/internal/addressing"
	"github.com/justapithecus/haul/internal/sign"
)

// ErrObjectNotFound indicates the requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Sentinels from the internal packages, re-exported so callers can
// match errors without importing them.
var (
	// ErrInvalidBucketName indicates a bucket name failed validation.
	ErrInvalidBucketName = addressing.ErrInvalidBucketName

	// ErrExpiryOutOfRange indicates a presign expiry outside [1s, 7d].
	ErrExpiryOutOfRange = sign.ErrExpiryOutOfRange
)

// isNotFound matches the service's two spellings of "no such object":
// GetObject raises NoSuchKey, HeadObject a bare 404.
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
