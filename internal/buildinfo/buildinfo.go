// Package buildinfo carries the gateway's own version and checks it
// against the latest GitHub release on startup, logging a warning
// rather than blocking if the process is out of date.
package buildinfo

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hashicorp/go-version"
	"go.uber.org/zap"
)

// Version is overridden at build time via -ldflags.
var Version = "v0.0.0"

type githubRelease struct {
	TagName string `json:"tag_name"`
}

// CheckForUpdates compares Version against the latest tagged release
// of repo ("owner/name"), logging a warning if this build is behind.
// Any failure to reach GitHub is swallowed: this is a courtesy check,
// never a startup dependency.
func CheckForUpdates(ctx context.Context, repo string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/repos/"+repo+"/releases/latest", nil)
	if err != nil {
		return
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return
	}

	current, err := version.NewVersion(Version)
	if err != nil {
		return
	}
	latest, err := version.NewVersion(release.TagName)
	if err != nil {
		return
	}

	if current.LessThan(latest) {
		logger.Warn("running an outdated build",
			zap.String("current", Version),
			zap.String("latest", release.TagName),
		)
	}
}
