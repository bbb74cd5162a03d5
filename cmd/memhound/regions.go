//go:build linux

package main

import (
	"fmt"

	"memhound/process/memory_map"

	"github.com/spf13/cobra"
)

var regionsWritableOnly bool

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List the target's mapped memory regions",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := attach()
		if err != nil {
			return err
		}
		defer h.Detach()

		snap, err := h.Target().RefreshRegions()
		if err != nil {
			return err
		}

		criteria := memory_map.Criteria{}
		if regionsWritableOnly {
			criteria.Require = memory_map.Write
		}

		for _, r := range snap.Filter(criteria) {
			fmt.Printf("%012x-%012x %s %-9s %s\n", r.Start, r.End, r.Perms, r.Kind, r.Path)
		}
		return nil
	},
}

func init() {
	regionsCmd.Flags().BoolVar(&regionsWritableOnly, "writable", false, "only writable regions")
	rootCmd.AddCommand(regionsCmd)
}
