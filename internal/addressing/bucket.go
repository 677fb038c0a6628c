package addressing

import (
	"errors"
	"fmt"
	"strings"
)

// Bucket naming errors.
var (
	// ErrInvalidBucketName indicates a bucket name failed validation.
	ErrInvalidBucketName = errors.New("invalid bucket name")
)

// BucketNameError provides details about bucket name validation failures.
type BucketNameError struct {
	Name    string
	Message string
}

func (e *BucketNameError) Error() string {
	return fmt.Sprintf("invalid bucket name %q: %s", e.Name, e.Message)
}

func (e *BucketNameError) Unwrap() error {
	return ErrInvalidBucketName
}

// ValidBucketName checks a bucket name against the S3 naming rules:
//
//   - 3 to 63 characters
//   - lowercase letters, digits, hyphens, and dots only
//   - must begin and end with a letter or digit
//   - no adjacent dots, and no dot adjacent to a hyphen
//   - must not be formatted like an IPv4 address
//
// Names that pass are accepted by S3 and by S3-compatible services
// (MinIO, R2, LocalStack). Returns nil for a valid name.
func ValidBucketName(name string) error {
	if len(name) < 3 {
		return &BucketNameError{Name: name, Message: "shorter than 3 characters"}
	}
	if len(name) > 63 {
		return &BucketNameError{Name: name, Message: "longer than 63 characters"}
	}

	if !isAlnum(name[0]) {
		return &BucketNameError{Name: name, Message: "must begin with a lowercase letter or digit"}
	}
	if !isAlnum(name[len(name)-1]) {
		return &BucketNameError{Name: name, Message: "must end with a lowercase letter or digit"}
	}

	for i := 0; i < len(name); i++ {
		c := name[i]
		if !isAlnum(c) && c != '-' && c != '.' {
			return &BucketNameError{Name: name, Message: fmt.Sprintf("contains invalid character %q", c)}
		}
		if c != '.' || i == 0 {
			continue
		}
		prev := name[i-1]
		if prev == '.' {
			return &BucketNameError{Name: name, Message: "contains adjacent dots"}
		}
		if prev == '-' || (i+1 < len(name) && name[i+1] == '-') {
			return &BucketNameError{Name: name, Message: "contains a dot adjacent to a hyphen"}
		}
	}

	if looksLikeIPv4(name) {
		return &BucketNameError{Name: name, Message: "must not be formatted like an IP address"}
	}

	return nil
}

// DNSCompatible reports whether a bucket name is safe for virtual-host
// addressing. Dotted names are excluded: a bucket with dots in its name
// produces a multi-level subdomain that wildcard TLS certificates do not
// cover, so such buckets must be addressed path-style over HTTPS.
func DNSCompatible(name string) bool {
	return ValidBucketName(name) == nil && !strings.Contains(name, ".")
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// looksLikeIPv4 reports whether the name is four dot-separated runs of
// digits. S3 rejects such names outright, so the check is purely
// syntactic; it does not care whether the octets are in range.
func looksLikeIPv4(name string) bool {
	labels := strings.Split(name, ".")
	if len(labels) != 4 {
		return false
	}
	for _, label := range labels {
		if label == "" {
			return false
		}
		for i := 0; i < len(label); i++ {
			if label[i] < '0' || label[i] > '9' {
				return false
			}
		}
	}
	return true
}
