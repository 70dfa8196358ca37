package repo_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/pkordes/dreamtrip/backend/testutil"
)

// TestMain migrates the integration database once per binary. The pgxmock
// tests need no database and run either way.
func TestMain(m *testing.M) {
	if _, err := testutil.MigrateFromEnv(context.Background()); err != nil {
		log.Fatalf("repo tests: %v", err)
	}
	os.Exit(m.Run())
}
