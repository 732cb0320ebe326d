// Package appfs embeds the files the binaries need at runtime.
package appfs

import "embed"

// FS holds the SQL migrations (`migrations/`) and the email templates (`assets/templates/email/`).
//go:embed migrations/*.sql assets/templates/email/*
var FS embed.FS
