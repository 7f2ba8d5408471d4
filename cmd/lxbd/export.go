package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/srg/lxb/internal/recorder"
)

var exportCmd = &cobra.Command{
	Use:   "export <session-dir> <dest.zip>",
	Short: "Zip a recorded session directory into a portable archive",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	sessionDir, destZip := args[0], args[1]

	info, err := os.Stat(sessionDir)
	if err != nil {
		return fmt.Errorf("lxbd: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("lxbd: %s is not a session directory", sessionDir)
	}

	if err := recorder.Export(sessionDir, destZip); err != nil {
		return err
	}
	fmt.Printf("exported %s -> %s\n", filepath.Clean(sessionDir), destZip)
	return nil
}
