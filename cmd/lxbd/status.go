package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running daemon's device connection status via its /healthz endpoint",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("addr", "ws://localhost:8787/ws", "hub websocket address")
	statusCmd.Flags().Duration("timeout", 5*time.Second, "how long to wait for a reply")
}

// runStatus is a thin diagnostic client: it derives the daemon's
// /healthz URL from the hub address, fetches the device connection
// status over plain HTTP, and prints the colorized verdict. It does not
// open a websocket connection.
func runStatus(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	httpAddr := toHTTPHealthAddr(addr)
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(httpAddr)
	if err != nil {
		return fmt.Errorf("lxbd: could not reach daemon at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("lxbd: decode status: %w", err)
	}

	connected, _ := status["connected"].(bool)
	label := color.RedString("disconnected")
	if connected {
		label = color.GreenString("connected")
	}
	fmt.Printf("device: %s\n", label)
	for k, v := range status {
		if k == "connected" {
			continue
		}
		fmt.Printf("%-12s %v\n", k, v)
	}
	return nil
}

// toHTTPHealthAddr turns the hub's ws(s):// address into the plain
// HTTP health-check address the daemon's /healthz endpoint answers on.
func toHTTPHealthAddr(wsAddr string) string {
	if len(wsAddr) >= 5 && wsAddr[:5] == "ws://" {
		return "http://" + wsAddr[5:len(wsAddr)-len("/ws")] + "/healthz"
	}
	if len(wsAddr) >= 6 && wsAddr[:6] == "wss://" {
		return "https://" + wsAddr[6:len(wsAddr)-len("/ws")] + "/healthz"
	}
	return wsAddr
}
