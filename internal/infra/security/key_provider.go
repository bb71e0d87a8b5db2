package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrKeyNotFound = errors.New("key not found")

// KeyProvider supplies the RSA key used to sign tokens and the public keys used to verify them.
type KeyProvider interface {
	SigningKey() (kid string, key *rsa.PrivateKey, err error)
	VerificationKey(kid string) (*rsa.PublicKey, error)
	VerificationKeys() map[string]*rsa.PublicKey
}

// FileKeyProvider loads PEM keys from a directory; the file name without
// extension is the kid. The first private key in name order signs.
type FileKeyProvider struct {
	keys       map[string]*rsa.PublicKey
	signingKID string
	signingKey *rsa.PrivateKey
}

// NewFileKeyProvider reads every PEM file in keyDir.
func NewFileKeyProvider(keyDir string) (*FileKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("read key directory: %w", err)
	}

	provider := &FileKeyProvider{keys: make(map[string]*rsa.PublicKey)}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file %s: %w", path, err)
		}

		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("decode PEM block from %s", path)
		}

		kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))

		if private, ok := parsePrivateKey(block.Bytes); ok {
			if provider.signingKey == nil {
				provider.signingKID = kid
				provider.signingKey = private
			}
			provider.keys[kid] = &private.PublicKey
			continue
		}

		if public, ok := parsePublicKey(block.Bytes); ok {
			provider.keys[kid] = public
			continue
		}

		return nil, fmt.Errorf("parse key from file %s", path)
	}

	if provider.signingKey == nil {
		return nil, errors.New("no private key found for signing")
	}

	return provider, nil
}

// NewStaticKeyProvider serves a single in-memory key.
func NewStaticKeyProvider(kid string, key *rsa.PrivateKey) *FileKeyProvider {
	return &FileKeyProvider{
		keys:       map[string]*rsa.PublicKey{kid: &key.PublicKey},
		signingKID: kid,
		signingKey: key,
	}
}

// NewEphemeralKeyProvider generates a throwaway 2048-bit key. Tokens it signs
// do not survive a restart.
func NewEphemeralKeyProvider(kid string) (*FileKeyProvider, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return NewStaticKeyProvider(kid, key), nil
}

func (p *FileKeyProvider) SigningKey() (string, *rsa.PrivateKey, error) {
	if p.signingKey == nil {
		return "", nil, ErrKeyNotFound
	}
	return p.signingKID, p.signingKey, nil
}

func (p *FileKeyProvider) VerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

func (p *FileKeyProvider) VerificationKeys() map[string]*rsa.PublicKey {
	out := make(map[string]*rsa.PublicKey, len(p.keys))
	for kid, key := range p.keys {
		out[kid] = key
	}
	return out
}

func parsePrivateKey(der []byte) (*rsa.PrivateKey, bool) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, true
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, true
		}
	}
	return nil, false
}

func parsePublicKey(der []byte) (*rsa.PublicKey, bool) {
	if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return key, true
	}
	if key, err := x509.ParsePKIXPublicKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return rsaKey, true
		}
	}
	return nil, false
}
