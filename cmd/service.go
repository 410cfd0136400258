package cmd

import (
	"fmt"
	"os"

	"github.com/kayz/scribe/internal/service"
	"github.com/spf13/cobra"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the scribe system service",
	Long:  `Install, uninstall, start, stop, or check "scribe serve" as a system service.`,
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install scribe serve as a system service",
	Long:  `Install scribe serve as a system service (requires root). --config is passed on to the service.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Installing scribe service...")
		if err := service.Install(execPath, configPath); err != nil {
			return fmt.Errorf("failed to install service: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Service installed successfully!")
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the scribe service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := service.Uninstall(); err != nil {
			return fmt.Errorf("failed to uninstall service: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Service uninstalled.")
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scribe service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := service.Start(); err != nil {
			return fmt.Errorf("failed to start service: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Service started!")
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the scribe service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := service.Stop(); err != nil {
			return fmt.Errorf("failed to stop service: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Service stopped!")
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the scribe service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := service.Restart(); err != nil {
			return fmt.Errorf("failed to restart service: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Service restarted!")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of the scribe service",
	RunE: func(cmd *cobra.Command, args []string) error {
		binaryPath, unitPath, err := service.Paths()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "=== scribe Service Status ===")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Installed: %v\n", service.IsInstalled())
		fmt.Fprintf(out, "Running:   %v\n", service.IsRunning())
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Binary:    %s\n", binaryPath)
		fmt.Fprintf(out, "Unit:      %s\n", unitPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.AddCommand(installCmd)
	serviceCmd.AddCommand(uninstallCmd)
	serviceCmd.AddCommand(startCmd)
	serviceCmd.AddCommand(stopCmd)
	serviceCmd.AddCommand(restartCmd)
	serviceCmd.AddCommand(statusCmd)
}
