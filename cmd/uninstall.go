package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/szclsya/mpdris2/internal/service"
)

// uninstallCmd represents the uninstall command
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the systemd user service",
	Long: `Stop the bridge and remove its systemd user unit.

This command will:
  - Stop and disable the running service (if any)
  - Remove the unit file from ~/.config/systemd/user/

After uninstalling, the bridge will no longer start with the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		unitPath, err := service.GetUnitPath()
		if err != nil {
			return fmt.Errorf("failed to get unit path: %w", err)
		}

		if _, err := os.Stat(unitPath); os.IsNotExist(err) {
			fmt.Println("Service is not installed (unit not found)")
			return nil
		}

		fmt.Println("Stopping service...")
		if err := systemctlUser("disable", "--now", service.UnitName); err != nil {
			fmt.Printf("Warning: failed to stop service: %v\n", err)
			fmt.Println("Continuing with unit removal...")
		} else {
			fmt.Println("✓ Service stopped")
		}

		if err := os.Remove(unitPath); err != nil {
			return fmt.Errorf("failed to remove unit file: %w", err)
		}
		if err := systemctlUser("daemon-reload"); err != nil {
			fmt.Printf("Warning: failed to reload systemd: %v\n", err)
		}

		fmt.Printf("✓ Removed unit from %s\n", unitPath)
		fmt.Println("\nTo reinstall, run:")
		fmt.Println("  mpdris2 install")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}
