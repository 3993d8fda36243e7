// Package identity builds client identities from candidate input and encodes
// the attestation token the remote service expects for each one.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/core"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrEmptyPackage     = errors.New("empty package name")
)

// ParseSignature decodes a hex-encoded signing-certificate digest. Surrounding
// whitespace and a colon-separated form (as printed by keytool) are accepted.
func ParseSignature(s string) ([]byte, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ":", "")
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSignature)
	}
	sig, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSignature, s, err)
	}
	return sig, nil
}

// New validates a package name and hex signature and returns the identity.
func New(packageName, signature string) (core.Identity, error) {
	packageName = strings.TrimSpace(packageName)
	if packageName == "" {
		return core.Identity{}, ErrEmptyPackage
	}
	sig, err := ParseSignature(signature)
	if err != nil {
		return core.Identity{}, err
	}
	return core.Identity{Package: packageName, Signature: sig}, nil
}

// ParseSignatures decodes every candidate signature, failing on the first
// malformed entry so that no run starts with a corrupted identity.
func ParseSignatures(candidates []string) ([][]byte, error) {
	out := make([][]byte, 0, len(candidates))
	for i, c := range candidates {
		sig, err := ParseSignature(c)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i+1, err)
		}
		out = append(out, sig)
	}
	return out, nil
}
