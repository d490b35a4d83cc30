package testutil

import (
	"testing"

	"github.com/lepinkainen/shelfsource/internal/config"
	"github.com/spf13/viper"
)

// ConfigState holds the state of the config package variables.
type ConfigState struct {
	OverwriteFiles bool
	UpdateCovers   bool
}

// SaveConfigState captures the current state of config package variables.
func SaveConfigState() ConfigState {
	return ConfigState{
		OverwriteFiles: config.OverwriteFiles,
		UpdateCovers:   config.UpdateCovers,
	}
}

// RestoreConfigState restores the config package variables to a saved state.
func RestoreConfigState(state ConfigState) {
	config.OverwriteFiles = state.OverwriteFiles
	config.UpdateCovers = state.UpdateCovers
}

// ResetConfig resets viper to the registered defaults and restores the
// previous config state when the test completes.
func ResetConfig(t *testing.T) {
	t.Helper()

	state := SaveConfigState()
	viper.Reset()
	config.SetDefaults()

	t.Cleanup(func() {
		RestoreConfigState(state)
		viper.Reset()
	})
}

// SetupTestCache points the cover cache at a database inside env.
// Returns the database path.
func SetupTestCache(t *testing.T, env *TestEnv) string {
	t.Helper()

	dbPath := env.Path("cache", "test-cache.db")
	env.WriteFile("cache/.keep", nil)

	viper.Set("cache.dbfile", dbPath)
	viper.Set("cache.ttl", "24h")

	return dbPath
}

// SetupGoodreads configures a shelf import against baseURL with covers
// stored inside env.
func SetupGoodreads(t *testing.T, env *TestEnv, baseURL, userID string, shelves ...string) {
	t.Helper()

	viper.Set("goodreads.baseurl", baseURL)
	viper.Set("goodreads.userid", userID)
	viper.Set("goodreads.coverdir", env.Path("covers"))
	viper.Set("goodreads.coverratelimit", 0)
	if len(shelves) > 0 {
		viper.Set("goodreads.shelves", shelves)
	}
	viper.Set("datastore.dbfile", env.Path("shelfsource.db"))
	viper.Set("markdownoutputdir", env.Path("markdown"))
	viper.Set("jsonoutputdir", env.Path("json"))
}
