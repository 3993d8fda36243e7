// Package workflow builds probe tasks and drives them through the queue,
// the worker pool and the aggregator.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/identity"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/worker"
)

// EnumerateDiscovery returns one task per (package, signature) pair, grouped
// by package in input order. Every signature is validated before any task is
// built; a malformed one fails the whole enumeration.
func EnumerateDiscovery(packages, signatures []string) ([]core.Task, error) {
	sigs, err := identity.ParseSignatures(signatures)
	if err != nil {
		return nil, err
	}

	seen := make(map[core.Key]struct{})
	tasks := make([]core.Task, 0, len(packages)*len(sigs))
	for _, pkg := range packages {
		pkg = strings.TrimSpace(pkg)
		if pkg == "" {
			return nil, identity.ErrEmptyPackage
		}
		for _, sig := range sigs {
			key := core.Identity{Package: pkg, Signature: sig}.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			tasks = append(tasks, core.Task{Key: key})
		}
	}
	return tasks, nil
}

// EnumerateScopes returns one task per (identity, scope) pair for every known
// signature of every client. Packages are visited in sorted order so that the
// enumeration is stable across runs.
func EnumerateScopes(clients map[string][]string, scopes []string) ([]core.Task, error) {
	packages := make([]string, 0, len(clients))
	for pkg := range clients {
		packages = append(packages, pkg)
	}
	sort.Strings(packages)

	seen := make(map[core.Task]struct{})
	var tasks []core.Task
	for _, pkg := range packages {
		for _, sig := range clients[pkg] {
			id, err := identity.New(pkg, sig)
			if err != nil {
				return nil, fmt.Errorf("client %s: %w", pkg, err)
			}
			key := id.Key()
			for _, scope := range scopes {
				scope = strings.TrimSpace(scope)
				if scope == "" {
					continue
				}
				task := core.Task{Key: key, Scope: scope}
				if _, dup := seen[task]; dup {
					continue
				}
				seen[task] = struct{}{}
				tasks = append(tasks, task)
			}
		}
	}
	return tasks, nil
}

// Produce sends every task to the queue in order and closes it. The queue is
// closed even when sending stops early.
func Produce(ctx context.Context, queue *worker.Queue, tasks []core.Task) error {
	defer queue.Close()
	for i, task := range tasks {
		if err := queue.Send(ctx, task); err != nil {
			return fmt.Errorf("enqueue task %d of %d: %w", i+1, len(tasks), err)
		}
	}
	return nil
}
