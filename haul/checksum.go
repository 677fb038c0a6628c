package haul

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Checksum names a hash algorithm and creates hashers for it.
//
// Attach one to a client with Config.Checksum to have every upload
// report a content digest of the original (pre-compression) bytes.
type Checksum interface {
	// Name returns the algorithm label used to prefix digests.
	Name() string

	// NewHasher creates a fresh hasher for one object.
	NewHasher() HashWriter
}

// HashWriter accumulates content and yields a hex digest.
type HashWriter interface {
	Write(p []byte) (n int, err error)
	Sum() string
}

// -----------------------------------------------------------------------------
// MD5 Checksum
// -----------------------------------------------------------------------------

// md5Checksum implements Checksum using MD5.
type md5Checksum struct{}

// NewMD5Checksum creates an MD5 checksum component.
//
// MD5 matches the ETag S3 reports for single-part uploads, which makes
// it convenient for spot-checking transfers; it is not collision
// resistant.
func NewMD5Checksum() Checksum {
	return &md5Checksum{}
}

func (c *md5Checksum) Name() string {
	return "md5"
}

func (c *md5Checksum) NewHasher() HashWriter {
	return &hashWriter{h: md5.New()}
}

// -----------------------------------------------------------------------------
// SHA-256 Checksum
// -----------------------------------------------------------------------------

// sha256Checksum implements Checksum using SHA-256.
type sha256Checksum struct{}

// NewSHA256Checksum creates a SHA-256 checksum component.
func NewSHA256Checksum() Checksum {
	return &sha256Checksum{}
}

func (c *sha256Checksum) Name() string {
	return "sha256"
}

func (c *sha256Checksum) NewHasher() HashWriter {
	return &hashWriter{h: sha256.New()}
}

// hashWriter wraps a hash.Hash to implement HashWriter.
type hashWriter struct {
	h hash.Hash
}

func (hw *hashWriter) Write(p []byte) (n int, err error) {
	return hw.h.Write(p)
}

func (hw *hashWriter) Sum() string {
	return hex.EncodeToString(hw.h.Sum(nil))
}
