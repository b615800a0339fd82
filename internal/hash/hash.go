// Package hash computes content hashes of change files.
package hash

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	gohash "hash"
	"strings"
)

// Algorithm names accepted by New.
const (
	SHA256 = "sha256"
	SHA512 = "sha512"
	None   = "none"
)

// Service hashes change file content into a lowercase hex string.
type Service interface {
	Hash(content []byte) string
}

type service struct {
	newHash func() gohash.Hash
}

func (s service) Hash(content []byte) string {
	h := s.newHash()
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// New returns the Service for algorithm, or nil when hashing is disabled.
func New(algorithm string) (Service, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case SHA256:
		return service{newHash: sha256.New}, nil
	case SHA512:
		return service{newHash: sha512.New}, nil
	case None, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", algorithm)
	}
}
