// Package update checks GitHub for a newer release.
package update

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	version "github.com/mcuadros/go-version"
	"github.com/pkg/errors"

	"github.com/valeria-popova/guildmgr/internal/httpx"
)

const releaseURL = "https://api.github.com/repos/valeria-popova/guildmgr/releases/latest"

type release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Check returns the latest release tag and whether it is newer than
// current. A non-release build ("dev") never reports an update.
func Check(ctx context.Context, client httpx.Doer, current string) (string, bool, error) {
	if current == "" || current == "dev" {
		return "", false, nil
	}

	req, err := httpx.NewRequest(ctx, http.MethodGet, releaseURL, nil, "")
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return "", false, errors.Wrap(err, "fetch latest release")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, errors.Errorf("release check: HTTP %d", resp.StatusCode)
	}

	var rel release
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rel); err != nil {
		return "", false, errors.Wrap(err, "decode release")
	}
	if rel.TagName == "" {
		return "", false, errors.New("release check: empty tag")
	}

	latest := strings.TrimPrefix(rel.TagName, "v")
	cur := strings.TrimPrefix(current, "v")
	return rel.TagName, version.Compare(version.Normalize(latest), version.Normalize(cur), ">"), nil
}
