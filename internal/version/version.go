// Package version exposes the release version embedded at build time.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the release version, with whitespace trimmed
func Get() string {
	return strings.TrimSpace(versionContent)
}

// UserAgent returns the HTTP User-Agent eof sends to orbit archives.
func UserAgent() string {
	return "eof/" + Get() + " (+https://github.com/sentineleof/eof)"
}
