//go:build linux

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"memhound/process"

	"github.com/spf13/cobra"
)

var (
	freezeAddr  string
	freezeType  string
	freezeValue string
)

var freezeCmd = &cobra.Command{
	Use:   "freeze",
	Short: "Pin an address to a value until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddr(freezeAddr)
		if err != nil {
			return err
		}
		t, err := process.ParseValueType(freezeType)
		if err != nil {
			return err
		}
		v, err := parseValue(t, freezeValue)
		if err != nil {
			return err
		}
		mode, err := accessMode()
		if err != nil {
			return err
		}

		h, err := attach()
		if err != nil {
			return err
		}
		defer h.Detach()

		id, err := h.Freeze(addr, v, mode)
		if err != nil {
			return err
		}
		fmt.Printf("freezing %s = %s (ctrl-c to stop)\n", addr, v)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		h.Unfreeze(id)
		return nil
	},
}

func init() {
	freezeCmd.Flags().StringVar(&freezeAddr, "addr", "", "address (hex)")
	freezeCmd.Flags().StringVar(&freezeType, "type", "int32", "value type")
	freezeCmd.Flags().StringVar(&freezeValue, "value", "", "literal to pin")
	rootCmd.AddCommand(freezeCmd)
}
