// Package migrations embeds the versioned SQL migrations for every supported dialect.
package migrations

import "embed"

//go:embed mysql/*.sql postgres/*.sql
var FS embed.FS

// RequiredVersion is the schema version this build expects. The daemon refuses
// to start against an older or dirty database.
const RequiredVersion uint = 2
