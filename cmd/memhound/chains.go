//go:build linux

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"memhound/chainscan"
	"memhound/process"

	"github.com/spf13/cobra"
)

var (
	chainsTarget    string
	chainsDepth     int
	chainsMaxOffset uint64
	chainsSnapshots int
	chainsInterval  time.Duration
	chainsShow      int
)

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "Discover stable pointer chains to a target address",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parseAddr(chainsTarget)
		if err != nil {
			return err
		}

		h, err := attach()
		if err != nil {
			return err
		}
		defer h.Detach()

		opts := chainscan.Options{
			MaxDepth:  chainsDepth,
			MaxOffset: process.Size(chainsMaxOffset),
			Snapshots: chainsSnapshots,
			Interval:  chainsInterval,
		}
		op, err := h.ScanChains(target, opts)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			op.Cancel()
		}()

		if err := op.Wait(context.Background()); err != nil {
			return err
		}
		chains := op.Result().([]chainscan.Chain)

		fmt.Printf("%d stable chain(s)\n", len(chains))
		show := len(chains)
		if chainsShow > 0 && chainsShow < show {
			show = chainsShow
		}
		for _, c := range chains[:show] {
			fmt.Printf("  %s  score=%d\n", c, c.Score)
		}
		return nil
	},
}

func init() {
	chainsCmd.Flags().StringVar(&chainsTarget, "target", "", "target address (hex)")
	chainsCmd.Flags().IntVar(&chainsDepth, "depth", 3, "maximum chain depth")
	chainsCmd.Flags().Uint64Var(&chainsMaxOffset, "max-offset", 0x200, "maximum struct offset per hop")
	chainsCmd.Flags().IntVar(&chainsSnapshots, "snapshots", 3, "stability passes")
	chainsCmd.Flags().DurationVar(&chainsInterval, "interval", 50*time.Millisecond, "delay between passes")
	chainsCmd.Flags().IntVar(&chainsShow, "show", 20, "chains to print (0 = all)")
	rootCmd.AddCommand(chainsCmd)
}
