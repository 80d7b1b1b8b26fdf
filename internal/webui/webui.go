// Package webui embeds the login page and the browser/player bundle.
package webui

import "embed"

//go:embed templates static
var FS embed.FS
