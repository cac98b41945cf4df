package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/szclsya/mpdris2/internal/service"
)

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the bridge as a systemd user service",
	Long: `Install the bridge as a systemd user service that starts with the session.

This command will:
  - Generate a systemd user unit for the bridge
  - Install it to ~/.config/systemd/user/
  - Enable and start the service with systemctl --user

The bridge will then run in the background, reconnecting to MPD as
needed, and expose it over MPRIS2 whenever the session bus is up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get the path to the current executable
		binaryPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		// Resolve symlinks to get the actual binary path
		binaryPath, err = filepath.EvalSymlinks(binaryPath)
		if err != nil {
			return fmt.Errorf("failed to resolve executable path: %w", err)
		}

		unitContent, err := service.GenerateUnit(service.UnitConfig{
			BinaryPath: binaryPath,
		})
		if err != nil {
			return fmt.Errorf("failed to generate unit: %w", err)
		}

		unitPath, err := service.GetUnitPath()
		if err != nil {
			return fmt.Errorf("failed to get unit path: %w", err)
		}

		if err := os.MkdirAll(filepath.Dir(unitPath), 0755); err != nil {
			return fmt.Errorf("failed to create unit directory: %w", err)
		}

		// Replacing an existing unit is fine; daemon-reload below picks
		// up the change.
		if err := os.WriteFile(unitPath, []byte(unitContent), 0644); err != nil {
			return fmt.Errorf("failed to write unit file: %w", err)
		}

		fmt.Printf("✓ Installed unit to %s\n", unitPath)

		if err := systemctlUser("daemon-reload"); err != nil {
			return fmt.Errorf("failed to reload systemd: %w", err)
		}
		if err := systemctlUser("enable", "--now", service.UnitName); err != nil {
			return fmt.Errorf("failed to enable service: %w", err)
		}

		fmt.Println("✓ Service enabled and started")
		fmt.Println("\nThe bridge is now running and will start with your session.")
		fmt.Println("\nYou can check the service status with:")
		fmt.Println("  systemctl --user status " + service.UnitName)
		fmt.Println("\nTo uninstall, run:")
		fmt.Println("  mpdris2 uninstall")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}

// systemctlUser runs one systemctl --user action and surfaces its
// output on failure.
func systemctlUser(args ...string) error {
	full := append([]string{"--user"}, args...)
	cmd := exec.Command("systemctl", full...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if len(output) > 0 {
			return fmt.Errorf("systemctl %s: %s", args[0], string(output))
		}
		return fmt.Errorf("systemctl %s: %w", args[0], err)
	}
	return nil
}
