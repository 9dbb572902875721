package profile

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/valeria-popova/guildmgr/internal/config"
)

var exampleFiles = []struct {
	path    func(config.Config) string
	content string
}{
	{config.Config.AccountIndexesPath, "# Account identifiers - one per line\n# Example:\n# 1\n# 2\n# 3\n"},
	{config.Config.TokensPath, "# Discord tokens - one per line\n# Example:\n# MTA1NTU2Nzg5...\n"},
	{config.Config.UserAgentsPath, "# User agents - one per line\n# Example:\n# Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36\n"},
	{config.Config.ProxiesPath, "# Proxies - one per line\n# Format: ip:port:username:password\n# Example:\n# 192.168.1.1:8080:user:pass\n"},
}

const LeaveListTemplate = "# Enter guild names, IDs or numbers to leave, one per line\n" +
	"# You can use guild names or IDs\n" +
	"# Example:\n" +
	"# My Server\n" +
	"# 123456789012345678\n"

// EnsureDataFiles creates the data and output directories and, when any
// required input file is missing, writes example templates for all
// missing files. Returns true when the inputs already existed.
func EnsureDataFiles(cfg config.Config, log *logrus.Logger) (bool, error) {
	for _, dir := range []string{cfg.DataDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, errors.Wrapf(err, "create directory %s", dir)
		}
	}

	var missing []string
	for _, f := range exampleFiles {
		path := f.path(cfg)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			missing = append(missing, path)
		}
	}
	if len(missing) == 0 {
		return true, nil
	}

	log.Error("MISSING REQUIRED FILES!")
	for _, path := range missing {
		log.Errorf("  - %s", path)
	}
	log.Info("Creating example files...")

	for _, f := range exampleFiles {
		path := f.path(cfg)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return false, errors.Wrapf(err, "write example file %s", path)
		}
	}

	log.Info("Example files created. Please fill them with your data and run again.")
	return false, nil
}

// EnsureLeaveList writes the leave-list template when the file is
// missing. Returns true when it already existed.
func EnsureLeaveList(path string, log *logrus.Logger) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return true, nil
	}
	if err := os.WriteFile(path, []byte(LeaveListTemplate), 0o644); err != nil {
		return false, errors.Wrapf(err, "write leave list template %s", path)
	}
	log.Infof("Created leave list file: %s", path)
	log.Info("Please add guilds to leave and run again!")
	return false, nil
}
