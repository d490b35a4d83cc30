package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestSetOverwriteFiles(t *testing.T) {
	originalValue := OverwriteFiles
	t.Cleanup(func() { OverwriteFiles = originalValue })

	SetOverwriteFiles(true)
	assert.True(t, OverwriteFiles)

	SetOverwriteFiles(false)
	assert.False(t, OverwriteFiles)
}

func TestSetUpdateCovers(t *testing.T) {
	originalValue := UpdateCovers
	t.Cleanup(func() { UpdateCovers = originalValue })

	SetUpdateCovers(true)
	assert.True(t, UpdateCovers)
}

func TestLoadGoodreads_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	InitConfig()
	cfg := LoadGoodreads()

	assert.Empty(t, cfg.UserID)
	assert.Equal(t, []string{"read", "currently-reading", "to-read"}, cfg.Shelves)
	assert.Equal(t, "https://www.goodreads.com", cfg.BaseURL)
	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, 4, cfg.CoverConcurrency)
	assert.Equal(t, "abort", cfg.ShelfPolicy)
	assert.Equal(t, "fail-fast", cfg.CoverPolicy)
	assert.Equal(t, "isbn", cfg.IdentityPolicy)
}

func TestLoadGoodreads_Overrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	SetDefaults()
	viper.Set("goodreads.userid", " 29665939 ")
	viper.Set("goodreads.shelves", []string{"favorites", " ", "read", "favorites"})
	viper.Set("goodreads.baseurl", "http://127.0.0.1:8080/")
	viper.Set("goodreads.coverpolicy", "best-effort")

	cfg := LoadGoodreads()

	assert.Equal(t, "29665939", cfg.UserID)
	assert.Equal(t, []string{"favorites", "read", "favorites"}, cfg.Shelves)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.BaseURL)
	assert.Equal(t, "best-effort", cfg.CoverPolicy)
}
