//go:build linux

package main

import (
	"fmt"
	"os"

	"memhound/hexdump"
	"memhound/process"
	"memhound/scan"

	"github.com/spf13/cobra"
)

var (
	readAddr string
	readLen  uint64

	writeAddr  string
	writeType  string
	writeValue string
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Hexdump target memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddr(readAddr)
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

		data, err := h.Target().ReadMemory(addr, process.Size(readLen), mode)
		if err != nil {
			return err
		}

		opts := hexdump.DefaultOptions()
		opts.Color = true
		hexdump.DumpToWriter(os.Stdout, addr, data, opts)
		return nil
	},
}

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write a typed value into target memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddr(writeAddr)
		if err != nil {
			return err
		}
		t, err := process.ParseValueType(writeType)
		if err != nil {
			return err
		}
		v, err := parseValue(t, writeValue)
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

		errs, err := h.WriteSet([]scan.WritePair{{Addr: addr, Value: v}}, mode)
		if err != nil {
			return err
		}
		if errs[0] != nil {
			return errs[0]
		}
		fmt.Printf("wrote %s at %s\n", v, addr)
		return nil
	},
}

func init() {
	readCmd.Flags().StringVar(&readAddr, "addr", "", "address (hex)")
	readCmd.Flags().Uint64Var(&readLen, "len", 256, "bytes to read")
	writeCmd.Flags().StringVar(&writeAddr, "addr", "", "address (hex)")
	writeCmd.Flags().StringVar(&writeType, "type", "int32", "value type")
	writeCmd.Flags().StringVar(&writeValue, "value", "", "literal to write")
	rootCmd.AddCommand(readCmd, writeCmd)
}
