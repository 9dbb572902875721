// Package pipeline runs the per-account state machine (proxy check →
// credential check → operation) and schedules it across accounts under
// a bounded concurrency limit.
package pipeline

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/valeria-popova/guildmgr/internal/aggregate"
	"github.com/valeria-popova/guildmgr/internal/catalog"
	"github.com/valeria-popova/guildmgr/internal/config"
	"github.com/valeria-popova/guildmgr/internal/discord"
	"github.com/valeria-popova/guildmgr/internal/output"
	"github.com/valeria-popova/guildmgr/internal/profile"
	"github.com/valeria-popova/guildmgr/internal/proxycheck"
)

// Mode selects the per-account operation.
type Mode int

const (
	ModeValidate Mode = iota
	ModeCollect
	ModeLeave
)

func (m Mode) String() string {
	switch m {
	case ModeValidate:
		return "validate"
	case ModeCollect:
		return "collect"
	case ModeLeave:
		return "leave"
	}
	return "unknown"
}

// ProxyChecker verifies a raw proxy descriptor for an account.
type ProxyChecker interface {
	Check(ctx context.Context, raw, identifier string) bool
}

// APIClient is the per-account Discord surface the pipeline drives.
type APIClient interface {
	ValidateToken(ctx context.Context, acct profile.Account) bool
	Guilds(ctx context.Context, acct profile.Account) []discord.Guild
	LeaveGuild(ctx context.Context, acct profile.Account, g discord.Guild) (bool, string)
}

var _ ProxyChecker = (*proxycheck.Checker)(nil)
var _ APIClient = (*discord.Client)(nil)

// Pipeline carries the collaborators shared by every account run.
type Pipeline struct {
	Cfg     config.Config
	Proxies ProxyChecker
	API     APIClient

	Catalog    *catalog.Catalog
	Aggregator *aggregate.Aggregator
	Stats      *aggregate.Stats
	Log        *logrus.Logger

	// LeaveList holds the pre-loaded leave entries for leave mode.
	LeaveList []string

	// catalogFile serializes rewrites of the combined listing when
	// several collect pipelines finish close together.
	catalogFile sync.Mutex
}

// Run executes the state machine for one account. Panics are recovered
// at this boundary so one broken account never takes down the batch.
func (p *Pipeline) Run(ctx context.Context, acct profile.Account, mode Mode) {
	entry := p.Log.WithField("profile", acct.Identifier)
	defer func() {
		if r := recover(); r != nil {
			entry.Errorf("Error during execution: %v", r)
		}
	}()

	entry.Info("Starting guild processing")
	p.Stats.AccountsProcessed.Add(1)

	// ProxyCheck; an unusable proxy skips the account before any API
	// traffic.
	if !p.Proxies.Check(ctx, acct.Proxy, acct.Identifier) {
		p.Stats.AccountsSkippedProxy.Add(1)
		entry.Error("SKIPPING account due to invalid proxy (security measure)")
		return
	}

	// CredentialCheck.
	if !p.API.ValidateToken(ctx, acct) {
		entry.Warn("Skipping profile due to invalid token")
		return
	}

	switch mode {
	case ModeValidate:
		// Validation is the whole operation.
	case ModeCollect:
		p.collect(ctx, acct, entry)
	case ModeLeave:
		p.leave(ctx, acct, entry)
	}
}

func (p *Pipeline) collect(ctx context.Context, acct profile.Account, entry *logrus.Entry) {
	guilds := p.API.Guilds(ctx, acct)
	if len(guilds) == 0 {
		entry.Warn("Guild list is empty or failed to load")
		return
	}

	p.Stats.GuildsCollected.Add(int64(len(guilds)))
	p.Catalog.Merge(guilds)

	path := p.Cfg.GuildListPath(acct.Identifier)
	if err := output.WriteGuildList(path, guilds); err != nil {
		entry.Errorf("Error writing guild list: %v", err)
	} else {
		entry.Infof("Guild list saved to %s", path)
	}

	p.catalogFile.Lock()
	defer p.catalogFile.Unlock()
	if err := output.WriteCatalog(p.Cfg.GuildsAllPath(), p.Catalog); err != nil {
		entry.Errorf("Error writing combined file: %v", err)
	} else {
		entry.Infof("List added to %s", p.Cfg.GuildsAllPath())
	}
}

func (p *Pipeline) leave(ctx context.Context, acct profile.Account, entry *logrus.Entry) {
	if len(p.LeaveList) == 0 {
		entry.Warn("Leave list is empty, nothing to do")
		return
	}
	entry.Infof("Processing %d entries from leave list", len(p.LeaveList))

	// The catalog-to-API fallback fires only when the whole catalog is
	// empty, never for individually unresolved entries.
	if p.Catalog.Len() == 0 {
		entry.Warn("Guild database not found or empty")
		entry.Info("Fetching guilds from Discord API...")
		guilds := p.API.Guilds(ctx, acct)
		if len(guilds) == 0 {
			entry.Error("Failed to fetch guilds from API")
			return
		}
		p.Catalog.Merge(guilds)
		entry.Infof("Loaded %d guilds from API", len(guilds))
	}

	var targets []discord.Guild
	for _, item := range p.LeaveList {
		g, ok := p.Catalog.Resolve(item)
		if !ok {
			entry.Warnf("Guild '%s' not found in database - skipping", item)
			continue
		}
		entry.Infof("Resolved '%s' -> '%s' (ID: %s)", item, g.Name, g.ID)
		targets = append(targets, g)
	}

	if len(targets) == 0 {
		entry.Warn("No matching guilds found to leave")
		return
	}
	entry.Infof("Found %d guilds to leave", len(targets))

	successful, failed := 0, 0
	for i, g := range targets {
		entry.Infof("Leaving '%s' (%d/%d)...", g.Name, i+1, len(targets))
		ok, reason := p.API.LeaveGuild(ctx, acct, g)
		if ok {
			successful++
			p.Aggregator.RecordSuccess(g.Name, g.ID, acct.Num)
			entry.Infof("Left '%s' (%d/%d)", g.Name, i+1, len(targets))
		} else {
			failed++
			p.Aggregator.RecordFailure(g.Name, g.ID, acct.Num, reason)
			entry.Errorf("Failed to leave '%s': %s (%d/%d)", g.Name, reason, i+1, len(targets))
		}
	}

	entry.Info("===== LEAVE SUMMARY =====")
	entry.Infof("Total to leave: %d", len(targets))
	entry.Infof("Successful: %d", successful)
	entry.Infof("Failed: %d", failed)
}
