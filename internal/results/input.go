// Package results loads candidate lists and prior discovery output, and
// writes the final per-package results to disk.
package results

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/aggregate"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/identity"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/logger"
)

// ErrNoCandidates is returned when an input source holds nothing to probe.
var ErrNoCandidates = errors.New("no candidates")

// ReadLines reads a newline-delimited candidate list. Surrounding whitespace
// is trimmed, blank lines are skipped and duplicates keep their first
// position.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	lines := ParseLines(data)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoCandidates, path)
	}
	return lines, nil
}

// ParseLines splits data into unique, non-blank, trimmed lines.
func ParseLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return Unique(lines)
}

// Unique trims every entry and drops blanks and repeats, keeping first
// positions.
func Unique(entries []string) []string {
	seen := make(map[string]struct{}, len(entries))
	var out []string
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Clients maps a package name to the identities discovered for it.
type Clients map[string][]aggregate.Client

// Signatures returns the hex signatures per package, the shape the scope
// enumerator consumes.
func (c Clients) Signatures() map[string][]string {
	out := make(map[string][]string, len(c))
	for pkg, list := range c {
		for _, client := range list {
			out[pkg] = append(out[pkg], client.Sig)
		}
	}
	return out
}

// storedClient accepts the older "spatula" field name for the token.
type storedClient struct {
	Sig     string `json:"sig" yaml:"sig"`
	Token   string `json:"token" yaml:"token"`
	Spatula string `json:"spatula" yaml:"spatula"`
}

// LoadClients reads prior discovery output. Files ending in .yaml or .yml are
// parsed as YAML, anything else as JSON. Each token is decoded and compared
// with its package and signature; a mismatch is logged and the entry kept.
func LoadClients(path string, log *logger.Logger) (Clients, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clients file: %w", err)
	}

	var raw map[string][]storedClient
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse clients file %s: %w", path, err)
	}

	clients := make(Clients, len(raw))
	for pkg, list := range raw {
		for _, c := range list {
			token := c.Token
			if token == "" {
				token = c.Spatula
			}
			clients[pkg] = append(clients[pkg], aggregate.Client{Sig: c.Sig, Token: token})
		}
	}

	total := 0
	for _, list := range clients {
		total += len(list)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoCandidates, path)
	}

	if log == nil {
		log = logger.NewNop()
	}
	for pkg, list := range clients {
		for _, client := range list {
			if err := CheckToken(pkg, client); err != nil {
				log.Warnw("Client token does not match its identity",
					"package", pkg,
					"signature", client.Sig,
					"error", err,
				)
			}
		}
	}
	return clients, nil
}

// CheckToken verifies that a client's token encodes its own package and
// signature. An empty token is accepted.
func CheckToken(pkg string, client aggregate.Client) error {
	if client.Token == "" {
		return nil
	}
	sig, err := identity.ParseSignature(client.Sig)
	if err != nil {
		return err
	}
	tokenPkg, tokenSig, err := identity.DecodeToken(client.Token)
	if err != nil {
		return err
	}
	if tokenPkg != pkg {
		return fmt.Errorf("token package %q differs from %q", tokenPkg, pkg)
	}
	if !bytes.Equal(tokenSig, sig) {
		return fmt.Errorf("token signature differs from %s", client.Sig)
	}
	return nil
}
