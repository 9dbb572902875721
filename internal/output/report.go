package output

import (
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/valeria-popova/guildmgr/internal/aggregate"
)

// maxDetailedProblems bounds how many problem guilds the leave report
// details before collapsing the rest into a count-only tail.
const maxDetailedProblems = 5

// PrintFinalReport renders the end-of-run statistics and, when any
// leave operation was recorded, the per-guild leave report.
func PrintFinalReport(log *logrus.Logger, stats *aggregate.Stats, summary aggregate.Summary) {
	rule := strings.Repeat("=", 80)
	log.Info(rule)
	log.Info(color.HiWhiteString("FINAL EXECUTION REPORT"))
	log.Info(rule)

	processed := stats.AccountsProcessed.Load()
	skipped := stats.AccountsSkippedProxy.Load()

	log.Info("ACCOUNTS:")
	log.Infof("   - Total processed: %d", processed)
	log.Infof("   - Skipped (proxy failed): %d", skipped)
	log.Infof("   - Successfully processed: %d", processed-skipped)

	log.Info("")
	log.Info("PROXY STATISTICS:")
	log.Infof("   - Total checked: %d", stats.ProxyChecked.Load())
	log.Infof("   - Working proxies: %d", stats.ProxyWorking.Load())
	log.Infof("   - Failed proxies: %d", stats.ProxyFailed.Load())
	log.Infof("   - No proxy (direct): %d", stats.ProxyEmpty.Load())
	if checked := stats.ProxyChecked.Load(); checked > 0 {
		log.Infof("   - Success rate: %.1f%%", float64(stats.ProxyWorking.Load())/float64(checked)*100)
	}

	log.Info("")
	log.Info("TOKEN STATISTICS:")
	log.Infof("   - Total checked: %d", stats.TokensChecked.Load())
	log.Infof("   - Valid tokens: %d", stats.TokensValid.Load())
	log.Infof("   - Invalid tokens: %d", stats.TokensInvalid.Load())
	if checked := stats.TokensChecked.Load(); checked > 0 {
		log.Infof("   - Valid rate: %.1f%%", float64(stats.TokensValid.Load())/float64(checked)*100)
	}

	if collected := stats.GuildsCollected.Load(); collected > 0 {
		log.Info("")
		log.Info("GUILDS COLLECTED:")
		log.Infof("   - Total guilds: %d", collected)
		if valid := stats.TokensValid.Load(); valid > 0 {
			log.Infof("   - Average per account: %.1f", float64(collected)/float64(valid))
		}
	}

	if !summary.Empty() {
		printLeaveReport(log, summary)
	}

	if failed := stats.ProxyFailed.Load(); failed > 0 {
		log.Warn("")
		log.Warnf("WARNING: %d proxy failures detected!", failed)
		log.Warn("   Check your proxy configuration and credentials")
	}
	if empty := stats.ProxyEmpty.Load(); empty > 0 {
		log.Warn("")
		log.Warnf("SECURITY WARNING: %d accounts used DIRECT connection!", empty)
		log.Warn("   Your real IP was EXPOSED to Discord!")
		log.Warn("   Add proxies to data/proxies.txt to avoid detection")
	}
	if invalid := stats.TokensInvalid.Load(); invalid > 0 {
		log.Warn("")
		log.Warnf("WARNING: %d invalid tokens detected!", invalid)
		log.Warn("   Check output/invalid_tokens.csv for details")
	}

	log.Info(rule)
	log.Info("Report generation completed")
	log.Info(rule)
}

func printLeaveReport(log *logrus.Logger, s aggregate.Summary) {
	rule := strings.Repeat("=", 60)
	log.Info("")
	log.Info(rule)
	log.Info(color.HiWhiteString("LEAVE OPERATIONS REPORT"))
	log.Info(rule)

	log.Info("")
	log.Info("SUMMARY:")
	log.Infof("   - Guilds in leave list: %d", s.TotalGuilds)
	log.Infof("   - Total leave operations: %d", s.TotalOperations)
	log.Infof("   - Successful operations: %d", s.TotalSuccessful)
	log.Infof("   - Failed operations: %d", s.TotalFailed)
	log.Info("")

	if s.TotalFailed == 0 {
		log.Infof("Successfully left all %d guilds across all accounts!", len(s.FullySuccessful))
		log.Info(rule)
		return
	}

	log.Infof("Successfully left %d guilds (all accounts)", len(s.FullySuccessful))
	partial, full := 0, 0
	for _, p := range s.Problems {
		if p.FullyFailed {
			full++
		} else {
			partial++
		}
	}
	if partial > 0 {
		log.Warnf("Partially failed: %d guilds (some accounts)", partial)
	}
	if full > 0 {
		log.Errorf("Fully failed: %d guilds (all accounts)", full)
	}

	log.Info("")
	log.Info(rule)
	log.Errorf("FAILED TO LEAVE (%d guilds):", len(s.Problems))
	log.Info(rule)

	if len(s.Problems) <= maxDetailedProblems {
		for _, p := range s.Problems {
			printProblemDetails(log, p)
		}
	} else {
		log.Info("")
		log.Infof("Top %d most problematic guilds:", maxDetailedProblems)
		log.Info("")
		for i, p := range s.Problems[:maxDetailedProblems] {
			rate := float64(p.FailedCount) / float64(p.TotalCount) * 100
			log.Infof("%d. %q (ID: %s...)", i+1, p.Name, truncateID(p.ID))
			log.Infof("   -> Failed on %d/%d accounts (%.0f%%)", p.FailedCount, p.TotalCount, rate)
			log.Infof("      Most common: %s", p.MostCommonReason)
			log.Info("")
		}
		log.Infof("... and %d more problematic guilds", len(s.Problems)-maxDetailedProblems)
		log.Info("")
	}

	log.Info(rule)
}

func printProblemDetails(log *logrus.Logger, p aggregate.Problem) {
	bar := strings.Repeat("-", 58)
	log.Info("")
	log.Infof("+%s+", bar)
	log.Infof("| Guild: %q", p.Name)
	log.Infof("| ID: %s", p.ID)
	log.Infof("+%s+", bar)
	log.Infof("| Failed on %d account(s):", p.FailedCount)

	for _, num := range sortedProfiles(p.FailedProfiles) {
		log.Infof("|   - Profile %d: %s", num, p.FailedProfiles[num])
	}

	log.Info("|")
	log.Infof("| Successfully left on %d account(s)", p.SuccessCount)
	log.Infof("+%s+", bar)
}

func sortedProfiles(failed map[int]string) []int {
	out := make([]int, 0, len(failed))
	for num := range failed {
		out = append(out, num)
	}
	sort.Ints(out)
	return out
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
