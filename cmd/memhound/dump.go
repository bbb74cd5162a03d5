//go:build linux

package main

import (
	"fmt"

	"memhound/process/memory_map"
	"memhound/process_snapshot"

	"github.com/spf13/cobra"
)

var (
	dumpOut string
	infoDir string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Capture the target's readable memory to disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := attach()
		if err != nil {
			return err
		}
		defer h.Detach()

		snap, err := process_snapshot.Capture(h.Target())
		if err != nil {
			return err
		}
		if err := snap.Save(dumpOut); err != nil {
			return err
		}
		regions := snap.Regions()
		fmt.Printf("saved %d region(s), %d bytes to %s\n",
			regions.Len(), regions.TotalBytes(memory_map.Criteria{}), dumpOut)
		return nil
	},
}

var dumpInfoCmd = &cobra.Command{
	Use:   "dump-info",
	Short: "Describe a saved memory dump",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := process_snapshot.Load(infoDir)
		if err != nil {
			return err
		}
		defer snap.Close()

		regions := snap.Regions()
		fmt.Printf("%d region(s), %d bytes\n",
			regions.Len(), regions.TotalBytes(memory_map.Criteria{}))
		for _, r := range regions.Regions() {
			fmt.Printf("  %012x-%012x %s %-9s %s\n",
				r.Start, r.End, r.Perms, r.Kind, r.Path)
		}
		return nil
	},
}

func init() {
	dumpCmd.Flags().StringVar(&dumpOut, "out", "dump", "output directory")
	dumpInfoCmd.Flags().StringVar(&infoDir, "dir", "dump", "dump directory")
	rootCmd.AddCommand(dumpCmd, dumpInfoCmd)
}
