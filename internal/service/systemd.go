// Package service generates and locates the systemd user unit that
// keeps the bridge running in a desktop session.
package service

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

const unitTemplate = `[Unit]
Description=MPRIS2 bridge for the Music Player Daemon
Documentation=man:mpd(1)
After=mpd.service mpd.socket

[Service]
Type=simple
ExecStart={{.BinaryPath}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

// UnitConfig holds the configuration for generating the unit file.
type UnitConfig struct {
	BinaryPath string
}

// GenerateUnit renders the systemd user unit from the template.
func GenerateUnit(config UnitConfig) (string, error) {
	tmpl, err := template.New("unit").Parse(unitTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse unit template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, config); err != nil {
		return "", fmt.Errorf("failed to execute unit template: %w", err)
	}

	return buf.String(), nil
}

// UnitName is the service name registered with systemd.
const UnitName = "mpdris2.service"

// GetUnitPath returns the path where the user unit should be
// installed.
func GetUnitPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".config", "systemd", "user", UnitName), nil
}
