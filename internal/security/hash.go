// Package security provides one-way digests of text.
//
// Digests are always returned in a printable encoding (hex by default);
// raw digest bytes are never handed out as text.
package security

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
)

// Algorithm names a digest function.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

// Encoding names the textual form of a digest.
type Encoding string

const (
	Hex    Encoding = "hex"
	Base64 Encoding = "base64"
)

var (
	// ErrUnknownAlgorithm is returned for algorithm names other than
	// md5, sha256 and sha512.
	ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

	// ErrUnknownEncoding is returned for encodings other than hex and base64.
	ErrUnknownEncoding = errors.New("unknown digest encoding")
)

// ParseAlgorithm accepts the algorithm names case-insensitively, with or
// without a dash (SHA-256).
func ParseAlgorithm(name string) (Algorithm, error) {
	normalized := Algorithm(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", ""))
	switch normalized {
	case MD5, SHA256, SHA512:
		return normalized, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

// ParseEncoding accepts "hex" and "base64"; an empty name means hex.
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(name))) {
	case "", Hex:
		return Hex, nil
	case Base64:
		return Base64, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
}

// Size returns the digest length in bytes.
func (a Algorithm) Size() int {
	switch a {
	case MD5:
		return md5.Size
	case SHA256:
		return sha256.Size
	case SHA512:
		return sha512.Size
	}
	return 0
}

func (a Algorithm) new() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, string(a))
}

// Sum returns the raw digest of the UTF-8 bytes of text.
func Sum(alg Algorithm, text string) ([]byte, error) {
	h, err := alg.new()
	if err != nil {
		return nil, err
	}
	h.Write([]byte(text))
	return h.Sum(nil), nil
}

// Hash returns the lower-case hex digest of text.
func Hash(alg Algorithm, text string) (string, error) {
	return HashEncoded(alg, Hex, text)
}

// HashEncoded returns the digest of text in the requested encoding.
func HashEncoded(alg Algorithm, enc Encoding, text string) (string, error) {
	sum, err := Sum(alg, text)
	if err != nil {
		return "", err
	}
	switch enc {
	case Hex:
		return hex.EncodeToString(sum), nil
	case Base64:
		return base64.StdEncoding.EncodeToString(sum), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, string(enc))
}

// HashMD5 returns the hex MD5 digest of text.
func HashMD5(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// HashSHA256 returns the hex SHA-256 digest of text.
func HashSHA256(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// HashSHA512 returns the hex SHA-512 digest of text.
func HashSHA512(text string) string {
	sum := sha512.Sum512([]byte(text))
	return hex.EncodeToString(sum[:])
}
