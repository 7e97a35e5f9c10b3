package main

import (
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/daniacca/molviz/internal/molviz"
)

// ServerConfig holds the server configuration
type ServerConfig struct {
	Addr           string
	PresetDir      string
	CatalogueFile  string
	SnapshotDir    string
	FrameInterval  time.Duration
	WatchDebounce  time.Duration
	MaxUploadBytes int64
	ViewportWidth  int
	ViewportHeight int
	LogLevel       string
}

// Viewport is the initial viewport of new sessions.
func (c ServerConfig) Viewport() molviz.Viewport {
	return molviz.Viewport{Width: c.ViewportWidth, Height: c.ViewportHeight}
}

// configResolver defines how to resolve a single configuration value
type configResolver struct {
	flagName    string
	envVarName  string
	defaultVal  string
	description string
	setter      func(*ServerConfig, string)
}

func positiveInt(name string, fallback int, set func(int)) func(string) {
	return func(v string) {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Printf("Invalid value for %s: %s, using default %d", name, v, fallback)
			n = fallback
		}
		set(n)
	}
}

func milliseconds(name string, fallback int, set func(time.Duration)) func(string) {
	return func(v string) {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			log.Printf("Invalid value for %s: %s, using default %d", name, v, fallback)
			n = fallback
		}
		set(time.Duration(n) * time.Millisecond)
	}
}

// loadServerConfig resolves every option from its CLI flag, then its
// MOLVIZ_* environment variable, then its default.
func loadServerConfig() ServerConfig {
	cfg := ServerConfig{}

	resolvers := []configResolver{
		{
			flagName:    "addr",
			envVarName:  "MOLVIZ_ADDR",
			defaultVal:  ":8080",
			description: "HTTP listen address (e.g. :8080, 0.0.0.0:8080)",
			setter:      func(c *ServerConfig, v string) { c.Addr = v },
		},
		{
			flagName:    "preset-dir",
			envVarName:  "MOLVIZ_PRESET_DIR",
			defaultVal:  "",
			description: "directory holding the preset catalogue and PDB files; empty uses the bundled presets",
			setter:      func(c *ServerConfig, v string) { c.PresetDir = v },
		},
		{
			flagName:    "catalogue-file",
			envVarName:  "MOLVIZ_CATALOGUE_FILE",
			defaultVal:  molviz.CatalogueFile,
			description: "catalogue file name inside the preset directory",
			setter:      func(c *ServerConfig, v string) { c.CatalogueFile = v },
		},
		{
			flagName:    "snapshot-dir",
			envVarName:  "MOLVIZ_SNAPSHOT_DIR",
			defaultVal:  "./data",
			description: "directory where scene snapshots are stored",
			setter:      func(c *ServerConfig, v string) { c.SnapshotDir = v },
		},
		{
			flagName:    "frame-interval",
			envVarName:  "MOLVIZ_FRAME_INTERVAL",
			defaultVal:  "100",
			description: "render loop interval for new sessions in milliseconds; 0 leaves the loop stopped",
			setter: func(c *ServerConfig, v string) {
				milliseconds("frame-interval", 100, func(d time.Duration) { c.FrameInterval = d })(v)
			},
		},
		{
			flagName:    "watch-debounce",
			envVarName:  "MOLVIZ_WATCH_DEBOUNCE",
			defaultVal:  "250",
			description: "delay in milliseconds before a preset directory change reloads the catalogue",
			setter: func(c *ServerConfig, v string) {
				milliseconds("watch-debounce", 250, func(d time.Duration) { c.WatchDebounce = d })(v)
			},
		},
		{
			flagName:    "max-upload-bytes",
			envVarName:  "MOLVIZ_MAX_UPLOAD_BYTES",
			defaultVal:  strconv.Itoa(molviz.DefaultMaxUploadBytes),
			description: "largest accepted PDB upload in bytes",
			setter: func(c *ServerConfig, v string) {
				positiveInt("max-upload-bytes", molviz.DefaultMaxUploadBytes, func(n int) { c.MaxUploadBytes = int64(n) })(v)
			},
		},
		{
			flagName:    "viewport-width",
			envVarName:  "MOLVIZ_VIEWPORT_WIDTH",
			defaultVal:  "800",
			description: "initial frame width in pixels",
			setter: func(c *ServerConfig, v string) {
				positiveInt("viewport-width", 800, func(n int) { c.ViewportWidth = n })(v)
			},
		},
		{
			flagName:    "viewport-height",
			envVarName:  "MOLVIZ_VIEWPORT_HEIGHT",
			defaultVal:  "600",
			description: "initial frame height in pixels",
			setter: func(c *ServerConfig, v string) {
				positiveInt("viewport-height", 600, func(n int) { c.ViewportHeight = n })(v)
			},
		},
		{
			flagName:    "log-level",
			envVarName:  "MOLVIZ_LOG_LEVEL",
			defaultVal:  "info",
			description: "Log level: debug, info, warn, error",
			setter:      func(c *ServerConfig, v string) { c.LogLevel = v },
		},
	}

	flagVars := make(map[string]*string)
	for _, resolver := range resolvers {
		flagVars[resolver.flagName] = flag.String(resolver.flagName, "", resolver.description)
	}

	flag.Parse()

	for _, resolver := range resolvers {
		var value string
		if *flagVars[resolver.flagName] != "" {
			value = *flagVars[resolver.flagName]
		} else if envValue := os.Getenv(resolver.envVarName); envValue != "" {
			value = envValue
		} else {
			value = resolver.defaultVal
		}
		resolver.setter(&cfg, value)
	}

	return cfg
}
