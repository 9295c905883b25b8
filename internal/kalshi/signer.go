package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Request signing headers.
const (
	HeaderAccessKey = "KALSHI-ACCESS-KEY"
	HeaderSignature = "KALSHI-ACCESS-SIGNATURE"
	HeaderTimestamp = "KALSHI-ACCESS-TIMESTAMP"
)

// ErrInvalidKey is returned when a private key cannot be parsed.
var ErrInvalidKey = errors.New("kalshi: invalid private key")

// Signer produces authentication headers for a request.
type Signer interface {
	// Headers returns the headers for method and the absolute request path (no query).
	Headers(method, path string, now time.Time) (map[string]string, error)
}

// RSASigner signs requests with RSA-PSS over SHA-256.
// The signed message is timestamp_ms + METHOD + path.
type RSASigner struct {
	keyID string
	key   *rsa.PrivateKey
}

// NewRSASigner creates a signer for an API key id and its private key.
func NewRSASigner(keyID string, key *rsa.PrivateKey) *RSASigner {
	return &RSASigner{keyID: keyID, key: key}
}

// LoadRSASigner reads a PEM encoded private key (PKCS#1 or PKCS#8) from path.
func LoadRSASigner(keyID, path string) (*RSASigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := ParsePrivateKey(data)
	if err != nil {
		return nil, err
	}
	return NewRSASigner(keyID, key), nil
}

// ParsePrivateKey decodes a PEM encoded RSA private key.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidKey)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidKey)
	}
	return key, nil
}

// Headers implements Signer.
func (s *RSASigner) Headers(method, path string, now time.Time) (map[string]string, error) {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	digest := sha256.Sum256([]byte(ts + method + path))
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	return map[string]string{
		HeaderAccessKey: s.keyID,
		HeaderSignature: base64.StdEncoding.EncodeToString(sig),
		HeaderTimestamp: ts,
	}, nil
}
