// Package migrations holds the goose schema for trips, itinerary versions
// and chat sessions. The server applies it at startup when RUN_MIGRATIONS is
// set; integration tests apply it through testutil.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
