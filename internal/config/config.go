// Package config resolves settings from the config file, the MPD_HOST
// and MPD_PORT environment variables, and command-line flags, in
// rising order of precedence.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	// MPD endpoint. Host may also be an absolute path to a Unix
	// socket, in which case Port is ignored.
	Host string
	Port int

	// Password sent before any other command, empty for none.
	Password string

	// NoNotification disables the desktop notification relay.
	NoNotification bool

	// ArtCacheDir overrides the album art cache location.
	ArtCacheDir string

	// OutputFormat is the Go template the now command renders.
	OutputFormat string

	// OutputWidth is the fixed display width for the now command,
	// 0 to disable padding.
	OutputWidth int
}

// Addr renders the dial target for the MPD connection.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Host, "/") {
		return c.Host
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Load reads configuration from file and environment. MPD_HOST may
// carry a password in the daemon's usual "password@host" form.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getConfigDir())
	v.AddConfigPath(".")

	v.SetDefault("host", "localhost")
	v.SetDefault("port", 6600)
	v.SetDefault("no_notification", false)
	v.SetDefault("art_cache_dir", "")
	v.SetDefault("output_format", "{{.Artist}} - {{.Title}}")
	v.SetDefault("output_width", 0)

	// Config file is optional.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		Host:           v.GetString("host"),
		Port:           v.GetInt("port"),
		Password:       v.GetString("password"),
		NoNotification: v.GetBool("no_notification"),
		ArtCacheDir:    v.GetString("art_cache_dir"),
		OutputFormat:   v.GetString("output_format"),
		OutputWidth:    v.GetInt("output_width"),
	}

	// The MPD_HOST/MPD_PORT convention shared by all MPD clients
	// overrides the config file.
	if host := os.Getenv("MPD_HOST"); host != "" {
		if pw, h, found := strings.Cut(host, "@"); found {
			cfg.Password = pw
			cfg.Host = h
		} else {
			cfg.Host = host
		}
	}
	if port := os.Getenv("MPD_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid MPD_PORT %q: %w", port, err)
		}
		cfg.Port = p
	}

	return cfg, nil
}

// getConfigDir returns the configuration directory path, creating it
// if missing.
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	configDir := filepath.Join(homeDir, ".config", "mpdris2")
	_ = os.MkdirAll(configDir, 0755)
	return configDir
}
