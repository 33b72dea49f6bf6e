package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultOutputFolder = "generated_results"

// ErrMissingSetting is wrapped by configuration errors for required settings.
var ErrMissingSetting = errors.New("missing required setting")

// Config holds one analysis invocation's settings.
type Config struct {
	ClassPath     string
	ProjectPrefix string
	TargetClass   string
	OutputFolder  string
	Direction     CallDirection
	Formats       []ReportFormat
	Workers       int
	Verbose       bool
	Neo4j         Neo4jConfig
}

// Neo4jConfig holds the optional graph export settings.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Clean    bool
}

// Enabled reports whether the graph export should run.
func (c Neo4jConfig) Enabled() bool {
	return c.Password != ""
}

// TargetMode reports whether the analysis is narrowed to one class.
func (c *Config) TargetMode() bool {
	return c.TargetClass != ""
}

// flagKeys maps config keys to the flags that override them.
var flagKeys = map[string]string{
	"project_cp":     "project_cp",
	"project_prefix": "project_prefix",
	"target_class":   "target_class",
	"output_folder":  "output_folder",
	"direction":      "direction",
	"format":         "format",
	"workers":        "workers",
	"verbose":        "verbose",
	"neo4j.uri":      "neo4j-uri",
	"neo4j.user":     "neo4j-user",
	"neo4j.password": "neo4j-pass",
	"neo4j.clean":    "clean",
}

// loadConfig merges, lowest first: defaults, the YAML config file,
// COUPLING_* environment variables and command line flags.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("coupling")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("COUPLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("output_folder", defaultOutputFolder)
	v.SetDefault("direction", CallerToCallee.String())
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.user", "neo4j")

	for key, name := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		ClassPath:     strings.TrimSpace(v.GetString("project_cp")),
		ProjectPrefix: v.GetString("project_prefix"),
		TargetClass:   strings.TrimSpace(v.GetString("target_class")),
		OutputFolder:  v.GetString("output_folder"),
		Workers:       v.GetInt("workers"),
		Verbose:       v.GetBool("verbose"),
		Neo4j: Neo4jConfig{
			URI:      v.GetString("neo4j.uri"),
			User:     v.GetString("neo4j.user"),
			Password: v.GetString("neo4j.password"),
			Clean:    v.GetBool("neo4j.clean"),
		},
	}

	if cfg.ClassPath == "" {
		return nil, fmt.Errorf("%w: project_cp", ErrMissingSetting)
	}
	if !v.IsSet("project_prefix") {
		return nil, fmt.Errorf("%w: project_prefix", ErrMissingSetting)
	}
	if cfg.OutputFolder == "" {
		cfg.OutputFolder = defaultOutputFolder
	}

	dir, err := ParseCallDirection(v.GetString("direction"))
	if err != nil {
		return nil, err
	}
	cfg.Direction = dir

	formats, err := ParseReportFormats(v.GetStringSlice("format"))
	if err != nil {
		return nil, err
	}
	cfg.Formats = formats

	return cfg, nil
}
