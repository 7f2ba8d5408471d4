package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/srg/lxb/internal/ble"
	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/debugbridge"
	"github.com/srg/lxb/internal/sample"
)

var debugBridgeCmd = &cobra.Command{
	Use:   "debug-bridge <address>",
	Short: "Connect directly to a device and expose one sensor's decoded stream on a PTY",
	Args:  cobra.ExactArgs(1),
	RunE:  runDebugBridge,
}

func init() {
	debugBridgeCmd.Flags().String("sensor", "eeg", "sensor to bridge: eeg, ppg, acc, or bat")
}

func runDebugBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	address := args[0]

	sensorFlag, _ := cmd.Flags().GetString("sensor")
	sensor, err := parseSensor(sensorFlag)
	if err != nil {
		return err
	}

	logger := cfg.NewLogger()
	clk := clock.System{}

	session := ble.NewSession(logger, clk)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := session.Connect(ctx, ble.DefaultConnectOptions(address)); err != nil {
		return fmt.Errorf("lxbd: connect: %w", err)
	}
	defer session.Disconnect()

	bridge, ttyName, err := debugbridge.Start(logger, session, sensor)
	if err != nil {
		return err
	}
	defer bridge.Stop()

	fmt.Printf("bridging %s samples from %s on %s\n", sensor, address, ttyName)
	fmt.Println("press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	return nil
}

func parseSensor(s string) (sample.Sensor, error) {
	switch sample.Sensor(s) {
	case sample.EEGSensor, sample.PPGSensor, sample.ACCSensor, sample.BatSensor:
		return sample.Sensor(s), nil
	default:
		return "", fmt.Errorf("lxbd: unknown sensor %q (want eeg, ppg, acc, or bat)", s)
	}
}
