//go:build integration

package testdb

import (
	"os"
	"testing"
)

// Environment variables checked for a test database, in order
var databaseURLEnvVars = []string{"TXTASK_TEST_DATABASE_URL", "DATABASE_URL"}

// GetTestDatabaseURL returns the first configured test database URL, or "".
func GetTestDatabaseURL() string {
	for _, envVar := range databaseURLEnvVars {
		if url := os.Getenv(envVar); url != "" {
			return url
		}
	}
	return ""
}

// ShouldSkipDatabaseTest reports whether no test database is configured.
func ShouldSkipDatabaseTest() bool {
	return GetTestDatabaseURL() == ""
}

// DatabaseURL returns the test database URL. Without one the test is
// skipped, or failed when running in CI.
func DatabaseURL(t *testing.T) string {
	t.Helper()

	url := GetTestDatabaseURL()
	if url != "" {
		return url
	}
	if isCIEnvironment() {
		t.Fatalf("no test database configured in CI; set one of %v", databaseURLEnvVars)
	}
	t.Skipf("no test database configured; set one of %v to run", databaseURLEnvVars)
	return ""
}

// isCIEnvironment returns true if running in any type of CI environment.
func isCIEnvironment() bool {
	for _, envVar := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"} {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	return false
}
