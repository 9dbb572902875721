// Package aggregate holds the run-scoped shared state mutated by
// concurrent account pipelines: atomic run counters and the per-guild
// leave-outcome aggregator consumed by the final report.
package aggregate

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Stats are the run counters. All fields are incremented atomically by
// pipelines and read only after every pipeline has joined.
type Stats struct {
	AccountsProcessed    atomic.Int64
	AccountsSkippedProxy atomic.Int64

	ProxyChecked atomic.Int64
	ProxyWorking atomic.Int64
	ProxyFailed  atomic.Int64
	ProxyEmpty   atomic.Int64

	TokensChecked atomic.Int64
	TokensValid   atomic.Int64
	TokensInvalid atomic.Int64

	GuildsCollected atomic.Int64
}

type guildOutcome struct {
	id      string
	success []int
	failed  map[int]string
}

func (g *guildOutcome) seen(profile int) bool {
	if _, ok := g.failed[profile]; ok {
		return true
	}
	for _, p := range g.success {
		if p == profile {
			return true
		}
	}
	return false
}

// Aggregator collects leave outcomes per guild across all accounts.
// Safe for concurrent use; each (guild, profile) pair is recorded at
// most once per run.
type Aggregator struct {
	mu     sync.Mutex
	guilds map[string]*guildOutcome
}

func NewAggregator() *Aggregator {
	return &Aggregator{guilds: make(map[string]*guildOutcome)}
}

func (a *Aggregator) outcome(name, id string) *guildOutcome {
	g, ok := a.guilds[name]
	if !ok {
		g = &guildOutcome{id: id, failed: make(map[int]string)}
		a.guilds[name] = g
	}
	return g
}

// RecordSuccess marks profile as having left the named guild.
func (a *Aggregator) RecordSuccess(name, id string, profile int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g := a.outcome(name, id)
	if g.seen(profile) {
		return
	}
	g.success = append(g.success, profile)
}

// RecordFailure marks profile as having failed to leave the named guild.
func (a *Aggregator) RecordFailure(name, id string, profile int, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g := a.outcome(name, id)
	if g.seen(profile) {
		return
	}
	g.failed[profile] = reason
}

// Problem describes a guild with at least one failed leave operation.
type Problem struct {
	Name string
	ID   string

	FailedCount  int
	TotalCount   int
	SuccessCount int

	// FailedProfiles maps profile number to failure reason.
	FailedProfiles map[int]string

	// MostCommonReason is the reason seen most often for this guild.
	MostCommonReason string

	FullyFailed bool
}

// Summary is a quiescent snapshot of all recorded leave outcomes.
type Summary struct {
	TotalGuilds     int
	TotalOperations int
	TotalSuccessful int
	TotalFailed     int

	FullySuccessful []string

	// Problems holds partially and fully failed guilds sorted by failure
	// count descending.
	Problems []Problem
}

// Empty reports whether any leave operation was recorded at all.
func (s Summary) Empty() bool {
	return s.TotalOperations == 0 && s.TotalGuilds == 0
}

// Summarize classifies every touched guild. Call only after all
// pipelines have completed.
func (a *Aggregator) Summarize() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	var s Summary
	s.TotalGuilds = len(a.guilds)

	for name, g := range a.guilds {
		succ := len(g.success)
		fail := len(g.failed)
		s.TotalOperations += succ + fail
		s.TotalSuccessful += succ
		s.TotalFailed += fail

		switch {
		case fail == 0 && succ > 0:
			s.FullySuccessful = append(s.FullySuccessful, name)
		case fail > 0:
			failed := make(map[int]string, fail)
			for p, r := range g.failed {
				failed[p] = r
			}
			s.Problems = append(s.Problems, Problem{
				Name:             name,
				ID:               g.id,
				FailedCount:      fail,
				TotalCount:       succ + fail,
				SuccessCount:     succ,
				FailedProfiles:   failed,
				MostCommonReason: mostCommon(g.failed),
				FullyFailed:      succ == 0,
			})
		}
	}

	sort.Strings(s.FullySuccessful)
	sort.Slice(s.Problems, func(i, j int) bool {
		if s.Problems[i].FailedCount != s.Problems[j].FailedCount {
			return s.Problems[i].FailedCount > s.Problems[j].FailedCount
		}
		return s.Problems[i].Name < s.Problems[j].Name
	})

	return s
}

func mostCommon(failed map[int]string) string {
	counts := make(map[string]int, len(failed))
	for _, r := range failed {
		counts[r]++
	}
	best, bestN := "", 0
	for r, n := range counts {
		if n > bestN || (n == bestN && r < best) {
			best, bestN = r, n
		}
	}
	return best
}
