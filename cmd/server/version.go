package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hashicorp/go-version"
	"go.uber.org/zap"
)

// appVersion is stamped at build time via -ldflags.
var appVersion = "v0.0.0"

type githubRelease struct {
	TagName string `json:"tag_name"`
}

// checkForUpdates compares the running version against the latest published
// release. Failures are silent; this must never delay startup.
func checkForUpdates(log *zap.Logger) {
	client := http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get("https://api.github.com/repos/proapi/proapi/releases/latest")
	if err != nil {
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return
	}

	current, err := version.NewVersion(appVersion)
	if err != nil {
		return
	}
	latest, err := version.NewVersion(release.TagName)
	if err != nil {
		return
	}

	if current.LessThan(latest) {
		log.Warn("a newer release is available",
			zap.String("running", appVersion),
			zap.String("latest", release.TagName),
		)
	}
}
