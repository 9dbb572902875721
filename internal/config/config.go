// Package config loads run settings from the environment (with an
// optional guildmgr.yaml next to the binary), mirroring the knobs the
// tool has always been driven by.
package config

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	StartLine int
	EndLine   int

	RandomStart bool
	ThreadCount int

	// Stagger delay between pipeline launches, in seconds.
	AccountDelayMin int
	AccountDelayMax int

	// Pacing delay before each leave request, in seconds.
	RequestDelayMin int
	RequestDelayMax int

	Retries int

	AllowProfiles []int
	SkipProfiles  []int

	DataDir   string
	OutputDir string
	LogDir    string

	CheckUpdate bool
}

func Load(log *logrus.Logger) Config {
	v := viper.New()

	v.SetDefault("start_line", 1)
	v.SetDefault("end_line", 9999)
	v.SetDefault("random_start", false)
	v.SetDefault("thread_count", 3)
	v.SetDefault("account_delay_min", 1)
	v.SetDefault("account_delay_max", 5)
	v.SetDefault("discord_request_delay_min", 5)
	v.SetDefault("discord_request_delay_max", 10)
	v.SetDefault("retries", 3)
	v.SetDefault("allow_profile_numbers", "")
	v.SetDefault("skip_profile_numbers", "")
	v.SetDefault("data_dir", "data")
	v.SetDefault("output_dir", "output")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("check_update", false)

	v.SetConfigName("guildmgr")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err == nil {
		log.Debugf("loaded config file %s", v.ConfigFileUsed())
	}
	v.AutomaticEnv()

	cfg := Config{
		StartLine:       v.GetInt("start_line"),
		EndLine:         v.GetInt("end_line"),
		RandomStart:     v.GetBool("random_start"),
		ThreadCount:     v.GetInt("thread_count"),
		AccountDelayMin: v.GetInt("account_delay_min"),
		AccountDelayMax: v.GetInt("account_delay_max"),
		RequestDelayMin: v.GetInt("discord_request_delay_min"),
		RequestDelayMax: v.GetInt("discord_request_delay_max"),
		Retries:         v.GetInt("retries"),
		AllowProfiles:   parseProfileList(v.GetString("allow_profile_numbers"), log),
		SkipProfiles:    parseProfileList(v.GetString("skip_profile_numbers"), log),
		DataDir:         v.GetString("data_dir"),
		OutputDir:       v.GetString("output_dir"),
		LogDir:          v.GetString("log_dir"),
		CheckUpdate:     v.GetBool("check_update"),
	}

	if cfg.StartLine < 1 {
		cfg.StartLine = 1
	}
	if cfg.ThreadCount < 1 {
		cfg.ThreadCount = 1
	}
	if cfg.Retries < 1 {
		cfg.Retries = 3
	}
	if cfg.AccountDelayMax < cfg.AccountDelayMin {
		cfg.AccountDelayMax = cfg.AccountDelayMin
	}
	if cfg.RequestDelayMax < cfg.RequestDelayMin {
		cfg.RequestDelayMax = cfg.RequestDelayMin
	}

	return cfg
}

// parseProfileList parses a comma-separated profile number filter;
// blanks and '#'-prefixed entries are ignored.
func parseProfileList(raw string, log *logrus.Logger) []int {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" || strings.HasPrefix(part, "#") {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			log.Warnf("Invalid profile number in filter: %s", part)
			continue
		}
		out = append(out, n)
	}
	return out
}

func (c Config) AccountIndexesPath() string { return filepath.Join(c.DataDir, "account_indexes.txt") }
func (c Config) TokensPath() string         { return filepath.Join(c.DataDir, "ds_tokens.txt") }
func (c Config) UserAgentsPath() string     { return filepath.Join(c.DataDir, "user_agents.txt") }
func (c Config) ProxiesPath() string        { return filepath.Join(c.DataDir, "proxies.txt") }
func (c Config) LeaveListPath() string      { return filepath.Join(c.DataDir, "guilds_leave.txt") }

func (c Config) GuildsAllPath() string { return filepath.Join(c.OutputDir, "guilds_all.csv") }
func (c Config) GuildListPath(identifier string) string {
	return filepath.Join(c.OutputDir, "guilds_"+identifier+".csv")
}
func (c Config) ValidTokensPath() string   { return filepath.Join(c.OutputDir, "valid_tokens.csv") }
func (c Config) InvalidTokensPath() string { return filepath.Join(c.OutputDir, "invalid_tokens.csv") }
