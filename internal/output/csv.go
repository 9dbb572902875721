// Package output owns the persisted artifacts (token tables, guild
// listings, the combined catalog) and the final console report.
package output

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/valeria-popova/guildmgr/internal/catalog"
	"github.com/valeria-popova/guildmgr/internal/discord"
	"github.com/valeria-popova/guildmgr/internal/profile"
)

// utf8BOM keeps spreadsheet tools from misreading the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// quoteLiteral marks a value as literal text so spreadsheets do not
// reinterpret long numeric strings.
func quoteLiteral(v string) string { return "'" + v }

func stripLiteral(v string) string { return strings.TrimPrefix(strings.TrimSpace(v), "'") }

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	if _, err := f.Write(utf8BOM); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(header); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	if err := w.WriteAll(rows); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	w.Flush()
	return errors.Wrapf(w.Error(), "flush %s", path)
}

// WriteGuildList persists one account's guild listing.
func WriteGuildList(path string, guilds []discord.Guild) error {
	rows := make([][]string, 0, len(guilds))
	for i, g := range guilds {
		rows = append(rows, []string{strconv.Itoa(i + 1), g.Name, quoteLiteral(g.ID)})
	}
	return writeCSV(path, []string{"#", "Server Name", "Server ID"}, rows)
}

// WriteCatalog persists the combined catalog sorted by name.
func WriteCatalog(path string, c *catalog.Catalog) error {
	return WriteGuildList(path, c.Sorted())
}

// ReadCatalog loads a previously persisted combined listing into a
// fresh catalog. A missing file yields an empty catalog, not an error.
func ReadCatalog(path string) (*catalog.Catalog, error) {
	c := catalog.New()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	// Skip the BOM if present.
	var bom [3]byte
	if n, _ := f.Read(bom[:]); n != 3 || bom != [3]byte{0xEF, 0xBB, 0xBF} {
		if _, err := f.Seek(0, 0); err != nil {
			return nil, errors.Wrapf(err, "seek %s", path)
		}
	}

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	for i, rec := range records {
		if i == 0 || len(rec) < 3 {
			continue
		}
		c.Put(stripLiteral(rec[2]), strings.TrimSpace(rec[1]))
	}
	return c, nil
}

type tokenRecord struct {
	num   int
	token string
}

// TokenLog buffers token check outcomes during the run and flushes them
// to the fixed-column CSV tables at the end. Implements
// discord.TokenRecorder.
type TokenLog struct {
	mu      sync.Mutex
	valid   []tokenRecord
	invalid []tokenRecord
}

func NewTokenLog() *TokenLog { return &TokenLog{} }

func (l *TokenLog) Valid(acct profile.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.valid = append(l.valid, tokenRecord{num: acct.Num, token: acct.Token})
}

func (l *TokenLog) Invalid(acct profile.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalid = append(l.invalid, tokenRecord{num: acct.Num, token: acct.Token})
}

func (l *TokenLog) flush(path, status string, records []tokenRecord, log *logrus.Logger) error {
	if len(records) == 0 {
		return nil
	}

	sorted := make([]tokenRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].num != sorted[j].num {
			return sorted[i].num < sorted[j].num
		}
		return sorted[i].token < sorted[j].token
	})

	rows := make([][]string, 0, len(sorted))
	for _, rec := range sorted {
		rows = append(rows, []string{strconv.Itoa(rec.num), quoteLiteral(rec.token), status})
	}
	if err := writeCSV(path, []string{"Account ID", "Token", "Status"}, rows); err != nil {
		return err
	}
	log.Infof("Saved %d %s tokens to %s", len(sorted), strings.ToLower(status), path)
	return nil
}

// FlushValid writes the valid-token table, sorted by account id.
func (l *TokenLog) FlushValid(path string, log *logrus.Logger) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flush(path, "Valid", l.valid, log)
}

// FlushInvalid writes the invalid-token table, sorted by account id.
func (l *TokenLog) FlushInvalid(path string, log *logrus.Logger) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flush(path, "Invalid", l.invalid, log)
}
