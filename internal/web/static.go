package web

import (
	"embed"
)

// staticFiles holds the status page assets served under /static/ and /.
//
//go:embed static/*
var staticFiles embed.FS
