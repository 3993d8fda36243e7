// Package aggregate merges the partial results produced by independent
// workers into one record per identity.
package aggregate

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/core"
)

type entry struct {
	scopes     map[string]struct{}
	discovered bool
	token      string
}

// Aggregator is a keyed set-union over approvals. Merge is commutative and
// idempotent, so the order in which partials arrive, or a partial merged
// twice, never changes the result. It makes no assumption that approvals
// for one identity are adjacent within a partial.
//
// An Aggregator is not safe for concurrent use; it runs once after the
// worker pool drains.
type Aggregator struct {
	entries map[core.Key]*entry
}

func New() *Aggregator {
	return &Aggregator{entries: make(map[core.Key]*entry)}
}

// Merge folds one worker's approvals into the aggregate. An approval with an
// empty scope marks the identity itself as discovered.
func (a *Aggregator) Merge(partial core.Partial) {
	for _, approval := range partial {
		e, ok := a.entries[approval.Key]
		if !ok {
			e = &entry{scopes: make(map[string]struct{})}
			a.entries[approval.Key] = e
		}
		if approval.Scope == "" {
			e.discovered = true
			continue
		}
		e.scopes[approval.Scope] = struct{}{}
	}
}

// MergeAll merges every partial.
func (a *Aggregator) MergeAll(partials []core.Partial) {
	for _, p := range partials {
		a.Merge(p)
	}
}

// MintTokens attaches a token to every discovered identity that has none
// yet. A token, once set, is never replaced.
func (a *Aggregator) MintTokens(encode core.TokenEncoder) error {
	for key, e := range a.entries {
		if !e.discovered || e.token != "" {
			continue
		}
		sig, err := hex.DecodeString(key.Signature)
		if err != nil {
			return fmt.Errorf("mint token for %s: %w", key, err)
		}
		e.token = encode(key.Package, sig)
	}
	return nil
}

// Len returns the number of identities with at least one approval.
func (a *Aggregator) Len() int {
	n := 0
	for _, e := range a.entries {
		if e.discovered || len(e.scopes) > 0 {
			n++
		}
	}
	return n
}

// Records returns one record per materialized identity, sorted by package
// then signature, with scopes sorted.
func (a *Aggregator) Records() []core.Record {
	records := make([]core.Record, 0, len(a.entries))
	for key, e := range a.entries {
		if !e.discovered && len(e.scopes) == 0 {
			continue
		}
		scopes := make([]string, 0, len(e.scopes))
		for s := range e.scopes {
			scopes = append(scopes, s)
		}
		sort.Strings(scopes)

		records = append(records, core.Record{
			Package:   key.Package,
			Signature: key.Signature,
			Token:     e.token,
			Scopes:    scopes,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Package != records[j].Package {
			return records[i].Package < records[j].Package
		}
		return records[i].Signature < records[j].Signature
	})
	return records
}

// ScopesByPackage collapses records into the package-keyed scope view,
// unioning scopes across every signature of a package. Packages with no
// approved scope are omitted.
func ScopesByPackage(records []core.Record) map[string][]string {
	sets := make(map[string]map[string]struct{})
	for _, r := range records {
		if len(r.Scopes) == 0 {
			continue
		}
		set, ok := sets[r.Package]
		if !ok {
			set = make(map[string]struct{})
			sets[r.Package] = set
		}
		for _, s := range r.Scopes {
			set[s] = struct{}{}
		}
	}

	out := make(map[string][]string, len(sets))
	for pkg, set := range sets {
		scopes := make([]string, 0, len(set))
		for s := range set {
			scopes = append(scopes, s)
		}
		sort.Strings(scopes)
		out[pkg] = scopes
	}
	return out
}

// Client is one discovered identity in the package-keyed discovery view.
type Client struct {
	Sig   string `json:"sig" yaml:"sig"`
	Token string `json:"token" yaml:"token"`
}

// ClientsByPackage collapses discovered records into the package-keyed
// discovery view.
func ClientsByPackage(records []core.Record) map[string][]Client {
	out := make(map[string][]Client)
	for _, r := range records {
		if r.Token == "" {
			continue
		}
		out[r.Package] = append(out[r.Package], Client{Sig: r.Signature, Token: r.Token})
	}
	return out
}
