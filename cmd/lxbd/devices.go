package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/lxb/internal/ble"
	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/registry"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List registered devices, or scan and register a new one",
	RunE:  runDevices,
}

func init() {
	devicesCmd.Flags().String("register", "", "scan for a device whose advertised name matches this value and register it")
	devicesCmd.Flags().Duration("scan-timeout", 0, "scan duration (defaults to the platform scan timeout)")
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()
	clk := clock.System{}

	reg := registry.New(clk, filepath.Join(cfg.Recorder.DataRoot, "registry.yaml"))
	if err := reg.Load(); err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("register")
	if name != "" {
		return registerDevice(cmd, reg, logger, clk, name)
	}

	devices := reg.Devices()
	if len(devices) == 0 {
		fmt.Println("no registered devices")
		return nil
	}
	for _, e := range devices {
		status := color.GreenString("idle")
		if reg.InCooldown(e.Name) {
			status = color.RedString("cooldown")
		}
		fmt.Printf("%-16s %-20s %s\n", e.Name, e.Address, status)
	}
	return nil
}

// registerDevice scans until a device advertising name is seen, then
// registers it by name and persists the registry (the registry is
// keyed by name, not address).
func registerDevice(cmd *cobra.Command, reg *registry.Registry, logger *logrus.Logger, clk clock.Clock, name string) error {
	timeout, _ := cmd.Flags().GetDuration("scan-timeout")

	scanner := ble.NewScanner(logger, clk)
	ctx := context.Background()
	if err := scanner.Scan(ctx, timeout); err != nil {
		return fmt.Errorf("lxbd: scan failed: %w", err)
	}

	d, ok := scanner.LookupByName(name)
	if !ok {
		return fmt.Errorf("lxbd: no device advertising name %q was seen during the scan", name)
	}

	reg.Register(d.Name, d.Address)
	if err := reg.Save(); err != nil {
		return fmt.Errorf("lxbd: save registry: %w", err)
	}
	fmt.Printf("registered %s at %s\n", d.Name, d.Address)
	return nil
}
