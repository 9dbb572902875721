// Package app wires configuration, logging and the pipeline together
// behind a single Run entrypoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/valeria-popova/guildmgr/internal/aggregate"
	"github.com/valeria-popova/guildmgr/internal/catalog"
	"github.com/valeria-popova/guildmgr/internal/cli"
	"github.com/valeria-popova/guildmgr/internal/config"
	"github.com/valeria-popova/guildmgr/internal/discord"
	"github.com/valeria-popova/guildmgr/internal/httpx"
	"github.com/valeria-popova/guildmgr/internal/logging"
	"github.com/valeria-popova/guildmgr/internal/output"
	"github.com/valeria-popova/guildmgr/internal/pipeline"
	"github.com/valeria-popova/guildmgr/internal/profile"
	"github.com/valeria-popova/guildmgr/internal/proxycheck"
	"github.com/valeria-popova/guildmgr/internal/update"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

const requestTimeout = 30 * time.Second

func Run(ctx context.Context, stdout, stderr io.Writer) int {
	fmt.Fprintf(color.Output, "%s\n", color.CyanString("guildmgr %s - Discord guild manager", Version))

	bootstrap := logrus.New()
	bootstrap.SetOutput(stderr)
	bootstrap.SetLevel(logrus.WarnLevel)
	cfg := config.Load(bootstrap)

	log, err := logging.New(logging.Options{Console: stdout, Dir: cfg.LogDir})
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize logging: %v\n", err)
		return 1
	}

	if cfg.CheckUpdate {
		checkUpdate(ctx, log)
	}

	ready, err := profile.EnsureDataFiles(cfg, log)
	if err != nil {
		log.Errorf("Failed to prepare data directory: %v", err)
		return 1
	}
	if !ready {
		return 0
	}

	mode, err := cli.ChooseMode()
	if err != nil {
		if errors.Is(err, cli.ErrAborted) {
			log.Info("Cancelled")
			return 0
		}
		log.Errorf("Menu error: %v", err)
		return 1
	}

	accounts, err := profile.LoadAccounts(cfg, log)
	if err != nil {
		log.Errorf("Failed to load accounts: %v", err)
		return 1
	}
	if len(accounts) == 0 {
		log.Error("No accounts to process. Check data files and line range settings.")
		return 1
	}
	log.Infof("Loaded %d accounts (lines %d-%d)", len(accounts), cfg.StartLine, cfg.EndLine)

	cat, err := output.ReadCatalog(cfg.GuildsAllPath())
	if err != nil {
		log.Warnf("Failed to read guild database: %v", err)
		cat = catalog.New()
	}

	var leaveList []string
	if mode == pipeline.ModeLeave {
		leaveList, err = loadLeaveList(cfg, log)
		if err != nil {
			return 1
		}
		if leaveList == nil {
			return 0
		}
	}

	stats := &aggregate.Stats{}
	agg := aggregate.NewAggregator()
	tokens := output.NewTokenLog()

	p := &pipeline.Pipeline{
		Cfg: cfg,
		Proxies: &proxycheck.Checker{
			Stats: stats,
			Log:   log,
		},
		API: &discord.Client{
			Timeout: requestTimeout,
			Retries: cfg.Retries,
			PaceMin: float64(cfg.RequestDelayMin),
			PaceMax: float64(cfg.RequestDelayMax),
			Tokens:  tokens,
			Stats:   stats,
			Log:     log,
		},
		Catalog:    cat,
		Aggregator: agg,
		Stats:      stats,
		Log:        log,
		LeaveList:  leaveList,
	}

	o := &pipeline.Orchestrator{
		Concurrency: cfg.ThreadCount,
		StaggerMin:  time.Duration(cfg.AccountDelayMin) * time.Second,
		StaggerMax:  time.Duration(cfg.AccountDelayMax) * time.Second,
		Pipeline:    p,
		Log:         log,
	}
	o.Run(ctx, accounts, mode)

	if mode == pipeline.ModeValidate {
		if err := tokens.FlushValid(cfg.ValidTokensPath(), log); err != nil {
			log.Errorf("Failed to write valid tokens: %v", err)
		}
		if err := tokens.FlushInvalid(cfg.InvalidTokensPath(), log); err != nil {
			log.Errorf("Failed to write invalid tokens: %v", err)
		}
	}

	output.PrintFinalReport(log, stats, agg.Summarize())
	return 0
}

// loadLeaveList reads the leave list, creating a template on first run.
// A nil list with a nil error means there is nothing to do yet.
func loadLeaveList(cfg config.Config, log *logrus.Logger) ([]string, error) {
	existed, err := profile.EnsureLeaveList(cfg.LeaveListPath(), log)
	if err != nil {
		log.Errorf("Failed to prepare leave list: %v", err)
		return nil, err
	}
	if !existed {
		return nil, nil
	}

	list, err := profile.LoadLines(cfg.LeaveListPath(), 1, 1<<30)
	if err != nil {
		log.Errorf("Failed to read leave list: %v", err)
		return nil, err
	}
	if len(list) == 0 {
		log.Warnf("Leave list %s is empty. Add guild names or IDs and run again.", cfg.LeaveListPath())
		return nil, nil
	}
	return list, nil
}

func checkUpdate(ctx context.Context, log *logrus.Logger) {
	client, err := httpx.NewClient(httpx.ClientConfig{Timeout: 10 * time.Second})
	if err != nil {
		log.Debugf("Update check skipped: %v", err)
		return
	}
	tag, newer, err := update.Check(ctx, client, Version)
	if err != nil {
		log.Debugf("Update check failed: %v", err)
		return
	}
	if newer {
		log.Infof("A newer release is available: %s", tag)
	}
}
