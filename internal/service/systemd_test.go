package service

import (
	"strings"
	"testing"
)

func TestGenerateUnit(t *testing.T) {
	unit, err := GenerateUnit(UnitConfig{BinaryPath: "/usr/local/bin/mpdris2"})
	if err != nil {
		t.Fatalf("GenerateUnit: %v", err)
	}

	for _, want := range []string{
		"ExecStart=/usr/local/bin/mpdris2",
		"After=mpd.service",
		"WantedBy=default.target",
		"Restart=on-failure",
	} {
		if !strings.Contains(unit, want) {
			t.Errorf("unit missing %q:\n%s", want, unit)
		}
	}
}

func TestGetUnitPath(t *testing.T) {
	path, err := GetUnitPath()
	if err != nil {
		t.Fatalf("GetUnitPath: %v", err)
	}
	if !strings.HasSuffix(path, "/.config/systemd/user/"+UnitName) {
		t.Errorf("GetUnitPath = %q", path)
	}
}
