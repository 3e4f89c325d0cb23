package security

import "errors"

// ErrUnsupported is returned by Encrypt and Decrypt. Symmetric encryption
// is not offered until its key-derivation and output format are defined.
var ErrUnsupported = errors.New("encryption is not supported")

// CipherAlgorithm names a symmetric cipher.
type CipherAlgorithm string

const (
	AES CipherAlgorithm = "aes"
	DES CipherAlgorithm = "des"
)

// Encrypt always fails with ErrUnsupported.
func Encrypt(text, masterKey string, cipher CipherAlgorithm, keyHash Algorithm) (string, error) {
	return "", ErrUnsupported
}

// Decrypt always fails with ErrUnsupported.
func Decrypt(encrypted, masterKey string, cipher CipherAlgorithm, keyHash Algorithm) (string, error) {
	return "", ErrUnsupported
}
