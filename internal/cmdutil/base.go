package cmdutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// OutputConfig holds the output locations of an import command
type OutputConfig struct {
	// ConfigKey names the source, e.g. "goodreads"; it is the default
	// subdirectory and JSON file name
	ConfigKey     string
	OutputDir     string
	WriteMarkdown bool
	JSONOutput    string
	WriteJSON     bool
}

// SetupOutputDir resolves output paths against the configured base
// directories and creates the directories that will be written to.
func SetupOutputDir(cfg *OutputConfig) error {
	// If flag wasn't provided, try to get value from config
	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = viper.GetString(cfg.ConfigKey + ".output")
	}
	if outputDir == "" {
		outputDir = cfg.ConfigKey
	}

	baseDir := viper.GetString("markdownoutputdir")
	if baseDir == "" {
		baseDir = "markdown"
	}
	cfg.OutputDir = filepath.Clean(filepath.Join(baseDir, outputDir))

	if cfg.WriteJSON && cfg.JSONOutput == "" {
		jsonBaseDir := viper.GetString("jsonoutputdir")
		if jsonBaseDir == "" {
			jsonBaseDir = "json"
		}
		cfg.JSONOutput = filepath.Clean(filepath.Join(jsonBaseDir, cfg.ConfigKey+".json"))
	}

	if cfg.WriteMarkdown {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if cfg.WriteJSON {
		if err := os.MkdirAll(filepath.Dir(cfg.JSONOutput), 0755); err != nil {
			return fmt.Errorf("failed to create JSON output directory: %w", err)
		}
	}

	return nil
}
