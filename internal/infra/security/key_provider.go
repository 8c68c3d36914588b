package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrKeyNotFound indicates no key matches the requested key ID.
var ErrKeyNotFound = errors.New("key not found")

// KeyProvider supplies the RSA material used to sign and verify access tokens.
type KeyProvider interface {
	SigningKey() (*rsa.PrivateKey, string, error)
	VerificationKey(kid string) (*rsa.PublicKey, error)
}

// FileKeyProvider loads PEM-encoded RSA keys from a directory. The file name
// without extension becomes the key ID. The lexicographically first private
// key found is used for signing; every key contributes its public half for
// verification, so rotated-out keys keep validating older tokens.
type FileKeyProvider struct {
	signingKey *rsa.PrivateKey
	signingKID string
	public     map[string]*rsa.PublicKey
}

// NewFileKeyProvider scans keyDir and builds the provider.
func NewFileKeyProvider(keyDir string) (*FileKeyProvider, error) {
	entries, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("read key directory: %w", err)
	}

	p := &FileKeyProvider{public: make(map[string]*rsa.PublicKey)}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file %s: %w", path, err)
		}

		kid := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))

		priv, pub, err := parseRSAKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse key file %s: %w", path, err)
		}

		if priv != nil && p.signingKey == nil {
			p.signingKey = priv
			p.signingKID = kid
		}
		p.public[kid] = pub
	}

	if p.signingKey == nil {
		return nil, errors.New("no private key found for signing")
	}

	return p, nil
}

// SigningKey returns the private key and its key ID.
func (p *FileKeyProvider) SigningKey() (*rsa.PrivateKey, string, error) {
	return p.signingKey, p.signingKID, nil
}

// VerificationKey returns the public key registered under kid.
func (p *FileKeyProvider) VerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.public[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

func parseRSAKey(data []byte) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, nil, errors.New("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, &key.PublicKey, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, &rsaKey.PublicKey, nil
		}
		return nil, nil, errors.New("PKCS#8 key is not RSA")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return nil, key, nil
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return nil, rsaKey, nil
		}
	}

	return nil, nil, errors.New("unsupported key format")
}
