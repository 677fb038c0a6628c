package sign

import (
	"encoding/base64"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// policyTimeFormat is the ISO 8601 layout S3 requires for the policy
// expiration field. Millisecond precision is part of the format.
const policyTimeFormat = "2006-01-02T15:04:05.000Z"

// PostPolicy accumulates the conditions of a browser POST upload policy.
//
// Every form field sent with the upload (other than the policy and
// signature themselves, and the file) must be matched by a condition, or
// the service rejects the upload. Conditions serialize in insertion
// order.
type PostPolicy struct {
	expiration time.Time
	conditions []any
}

// NewPostPolicy creates a policy that expires at the given time.
func NewPostPolicy(expiration time.Time) *PostPolicy {
	return &PostPolicy{expiration: expiration.UTC()}
}

// Match adds an exact-match condition on a form field.
func (p *PostPolicy) Match(field, value string) {
	p.conditions = append(p.conditions, []string{"eq", "$" + field, value})
}

// StartsWith adds a prefix condition on a form field. An empty prefix
// allows any value.
func (p *PostPolicy) StartsWith(field, prefix string) {
	p.conditions = append(p.conditions, []string{"starts-with", "$" + field, prefix})
}

// ContentLengthRange bounds the size of the uploaded file in bytes.
func (p *PostPolicy) ContentLengthRange(min, max int64) {
	p.conditions = append(p.conditions, []any{"content-length-range", min, max})
}

// Base64 serializes the policy document and encodes it for the policy
// form field. The base64 text is also the exact payload that gets
// signed.
func (p *PostPolicy) Base64() (string, error) {
	if p.expiration.IsZero() {
		return "", fmt.Errorf("post policy: expiration is required")
	}
	if len(p.conditions) == 0 {
		return "", fmt.Errorf("post policy: at least one condition is required")
	}

	doc := struct {
		Expiration string `json:"expiration"`
		Conditions []any  `json:"conditions"`
	}{
		Expiration: p.expiration.Format(policyTimeFormat),
		Conditions: p.conditions,
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal post policy: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
