package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yairfalse/pulse/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pulse configuration",
	}

	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand())

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("path")
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("cannot determine home directory: %w", err)
				}
				path = filepath.Join(home, ".pulse", "config.yaml")
			}

			if _, err := os.Stat(path); err == nil {
				force, _ := cmd.Flags().GetBool("force")
				if !force {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
				}
			}

			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Printf("wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().String("path", "", "destination path (default $HOME/.pulse/config.yaml)")
	cmd.Flags().Bool("force", false, "overwrite an existing config file")

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := GetConfig()
			fmt.Printf("logging:  level=%s format=%s\n", c.Logging.Level, c.Logging.Format)
			fmt.Printf("pool:     buffers=%d contexts=%d\n", c.Pool.BufferMaxSize, c.Pool.ContextMaxSize)
			fmt.Printf("cache:    capacity=%d\n", c.Cache.Capacity)
			fmt.Printf("leak:     staleness=%s\n", c.Leak.StalenessWindow)
			fmt.Printf("cleanup:  periodic=%s\n", c.Cleanup.PeriodicInterval)
			fmt.Printf("monitor:  poll=%s spacing=%s ceiling=%dMB growth=%.0fMB/min leaks=%d fps-floor=%.0f\n",
				c.Monitor.PollInterval, c.Monitor.MinPollSpacing, c.Monitor.MemoryCeilingMB,
				c.Monitor.GrowthCeilingMBMin, c.Monitor.LeakCountCeiling, c.Monitor.FPSFloor)
			fmt.Printf("render:   target-fps=%d (interval %s)\n", c.Render.TargetFPS, c.Render.FrameInterval())
			fmt.Printf("lod:      %d levels\n", len(c.LOD.Levels))
			for _, l := range c.LOD.Levels {
				fmt.Printf("  zoom<=%-5.2f %s\n", l.Threshold, l.Strategy)
			}
			return nil
		},
	}
}
