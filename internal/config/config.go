package config

import (
	"strings"

	"github.com/spf13/viper"
)

// DefaultShelves are fetched when neither flags nor config name any shelves
var DefaultShelves = []string{"read", "currently-reading", "to-read"}

// Global configuration variables
var (
	// OverwriteFiles controls whether existing markdown and JSON output files should be overwritten
	OverwriteFiles bool
	// UpdateCovers forces cover images to be downloaded again even when a cached copy exists
	UpdateCovers bool
)

// Goodreads is the resolved configuration for a shelf import run.
type Goodreads struct {
	UserID  string
	Shelves []string
	BaseURL string
	// Transport selects how shelf pages are fetched: "http" or "browser"
	Transport string

	CoverDir         string
	CoverConcurrency int
	CoverRateLimit   float64
	CoverMaxWidth    int

	// Failure and identity policies, validated by the importer
	ShelfPolicy    string
	CoverPolicy    string
	IdentityPolicy string
}

// InitConfig initializes the global configuration
func InitConfig() {
	SetDefaults()

	// Get values from viper
	OverwriteFiles = viper.GetBool("OverwriteFiles")
	UpdateCovers = viper.GetBool("UpdateCovers")
}

// SetDefaults registers the default value of every configuration key
func SetDefaults() {
	viper.SetDefault("MarkdownOutputDir", "./markdown/")
	viper.SetDefault("JSONOutputDir", "./json/")
	viper.SetDefault("OverwriteFiles", false)
	viper.SetDefault("UpdateCovers", false)

	viper.SetDefault("datastore.enabled", true)
	viper.SetDefault("datastore.dbfile", "./shelfsource.db")
	viper.SetDefault("datasette.database", "shelfsource")

	viper.SetDefault("cache.dbfile", "./cache.db")
	viper.SetDefault("cache.ttl", "720h")

	viper.SetDefault("goodreads.shelves", DefaultShelves)
	viper.SetDefault("goodreads.baseurl", "https://www.goodreads.com")
	viper.SetDefault("goodreads.transport", "http")
	viper.SetDefault("goodreads.coverdir", "./covers/")
	viper.SetDefault("goodreads.coverconcurrency", 4)
	viper.SetDefault("goodreads.coverratelimit", 5.0)
	viper.SetDefault("goodreads.covermaxwidth", 0)
	viper.SetDefault("goodreads.shelfpolicy", "abort")
	viper.SetDefault("goodreads.coverpolicy", "fail-fast")
	viper.SetDefault("goodreads.identitypolicy", "isbn")
}

// LoadGoodreads reads the goodreads.* keys into a Goodreads snapshot
func LoadGoodreads() Goodreads {
	return Goodreads{
		UserID:           strings.TrimSpace(viper.GetString("goodreads.userid")),
		Shelves:          cleanShelves(viper.GetStringSlice("goodreads.shelves")),
		BaseURL:          strings.TrimRight(viper.GetString("goodreads.baseurl"), "/"),
		Transport:        viper.GetString("goodreads.transport"),
		CoverDir:         viper.GetString("goodreads.coverdir"),
		CoverConcurrency: viper.GetInt("goodreads.coverconcurrency"),
		CoverRateLimit:   viper.GetFloat64("goodreads.coverratelimit"),
		CoverMaxWidth:    viper.GetInt("goodreads.covermaxwidth"),
		ShelfPolicy:      viper.GetString("goodreads.shelfpolicy"),
		CoverPolicy:      viper.GetString("goodreads.coverpolicy"),
		IdentityPolicy:   viper.GetString("goodreads.identitypolicy"),
	}
}

// cleanShelves drops blank names but keeps the configured order and duplicates
func cleanShelves(shelves []string) []string {
	out := make([]string, 0, len(shelves))
	for _, s := range shelves {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SetOverwriteFiles sets the OverwriteFiles flag
func SetOverwriteFiles(overwrite bool) {
	OverwriteFiles = overwrite
}

// SetUpdateCovers sets the UpdateCovers flag
func SetUpdateCovers(update bool) {
	UpdateCovers = update
}
