//go:build linux

package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"memhound/process"
	"memhound/scan"
)

// parseValue turns a CLI literal into a typed value for the given type.
// Bytes literals are hex, spaces and commas ignored.
func parseValue(t process.ValueType, s string) (process.Value, error) {
	switch t {
	case process.UTF8:
		return process.EncodeText(s), nil
	case process.Bytes:
		clean := strings.NewReplacer(" ", "", ",", "", "0x", "").Replace(s)
		raw, err := hex.DecodeString(clean)
		if err != nil {
			return process.Value{}, fmt.Errorf("bad byte pattern %q: %w", s, err)
		}
		return process.NewValue(process.Bytes, raw), nil
	case process.Float32, process.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return process.Value{}, fmt.Errorf("bad float literal %q: %w", s, err)
		}
		return process.EncodeFloat(t, f)
	default:
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			// large uint64 literals overflow ParseInt
			u, uerr := strconv.ParseUint(s, 0, 64)
			if uerr != nil {
				return process.Value{}, fmt.Errorf("bad integer literal %q: %w", s, err)
			}
			n = int64(u)
		}
		return process.EncodeInt(t, n)
	}
}

// parseComparator parses refine steps like "unchanged", "equals:42",
// "increased-by:5" or "in-range:10,20".
func parseComparator(t process.ValueType, s string) (scan.Comparator, error) {
	name, arg, _ := strings.Cut(s, ":")
	switch name {
	case "changed":
		return scan.Changed(), nil
	case "unchanged":
		return scan.Unchanged(), nil
	case "increased":
		return scan.Increased(), nil
	case "decreased":
		return scan.Decreased(), nil
	case "equals":
		v, err := parseValue(t, arg)
		if err != nil {
			return scan.Comparator{}, err
		}
		return scan.Equals(v), nil
	case "increased-by":
		v, err := parseValue(t, arg)
		if err != nil {
			return scan.Comparator{}, err
		}
		return scan.IncreasedBy(v), nil
	case "decreased-by":
		v, err := parseValue(t, arg)
		if err != nil {
			return scan.Comparator{}, err
		}
		return scan.DecreasedBy(v), nil
	case "in-range":
		loStr, hiStr, ok := strings.Cut(arg, ",")
		if !ok {
			return scan.Comparator{}, fmt.Errorf("in-range wants lo,hi, got %q", arg)
		}
		lo, err := parseValue(t, strings.TrimSpace(loStr))
		if err != nil {
			return scan.Comparator{}, err
		}
		hi, err := parseValue(t, strings.TrimSpace(hiStr))
		if err != nil {
			return scan.Comparator{}, err
		}
		return scan.InRange(lo, hi), nil
	default:
		return scan.Comparator{}, fmt.Errorf("unknown comparator %q", name)
	}
}

func parseAddr(s string) (process.Address, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return process.Address(n), nil
}
