// Package profile builds immutable account records from the
// line-oriented data files, aligned to each other by line number.
package profile

import (
	"bufio"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/valeria-popova/guildmgr/internal/config"
)

// Account is one set of credentials processed independently by a
// pipeline. Immutable once built.
type Account struct {
	// Identifier is the line-number key aligning the data files.
	Identifier string

	// Num is Identifier parsed as an integer, 0 when non-numeric.
	// Used for sorting persisted outputs and for aggregate records.
	Num int

	Token     string
	UserAgent string

	// Proxy is the raw descriptor from proxies.txt; empty means a
	// direct connection.
	Proxy string
}

func newAccount(identifier, token, userAgent, proxyRaw string) (Account, error) {
	if token == "" {
		return Account{}, errors.Errorf("profile %s: token missing", identifier)
	}
	num := 0
	if n, err := strconv.Atoi(identifier); err == nil {
		num = n
	}
	return Account{
		Identifier: identifier,
		Num:        num,
		Token:      token,
		UserAgent:  userAgent,
		Proxy:      proxyRaw,
	}, nil
}

// LoadLines reads a data file and returns its lines within the
// [startLine, endLine] window, with blank and '#'-prefixed lines
// filtered out. Line numbers are counted before filtering.
func LoadLines(path string, startLine, endLine int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo < startLine {
			continue
		}
		if lineNo > endLine {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return out, nil
}

// loadIndexed maps line-number-as-identifier (offset by startLine) to
// each surviving line.
func loadIndexed(path string, startLine, endLine int) (map[string]string, error) {
	lines, err := LoadLines(path, startLine, endLine)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(lines))
	for i, line := range lines {
		out[strconv.Itoa(i+startLine)] = line
	}
	return out, nil
}

// LoadAccounts builds the account set from the four aligned data files,
// applies the allow/skip filters, and optionally shuffles the order.
func LoadAccounts(cfg config.Config, log *logrus.Logger) ([]Account, error) {
	indexes, err := loadIndexed(cfg.AccountIndexesPath(), cfg.StartLine, cfg.EndLine)
	if err != nil {
		return nil, err
	}
	if len(indexes) == 0 {
		return nil, errors.Errorf("required file is empty: %s", cfg.AccountIndexesPath())
	}
	tokens, err := loadIndexed(cfg.TokensPath(), cfg.StartLine, cfg.EndLine)
	if err != nil {
		return nil, err
	}
	agents, err := loadIndexed(cfg.UserAgentsPath(), cfg.StartLine, cfg.EndLine)
	if err != nil {
		return nil, err
	}
	proxies, err := loadIndexed(cfg.ProxiesPath(), cfg.StartLine, cfg.EndLine)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(indexes))
	for id := range indexes {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		na, _ := strconv.Atoi(a)
		nb, _ := strconv.Atoi(b)
		return na - nb
	})

	var accounts []Account
	for _, id := range ids {
		num, _ := strconv.Atoi(id)
		if len(cfg.AllowProfiles) > 0 && !slices.Contains(cfg.AllowProfiles, num) {
			continue
		}
		if slices.Contains(cfg.SkipProfiles, num) {
			continue
		}

		acct, err := newAccount(id, tokens[id], agents[id], proxies[id])
		if err != nil {
			log.Warnf("%v, skipping", err)
			continue
		}
		accounts = append(accounts, acct)
	}

	if cfg.RandomStart {
		rand.Shuffle(len(accounts), func(i, j int) {
			accounts[i], accounts[j] = accounts[j], accounts[i]
		})
	}

	return accounts, nil
}
