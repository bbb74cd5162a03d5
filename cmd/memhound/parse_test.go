//go:build linux

package main

import (
	"testing"

	"memhound/process"

	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	v, err := parseValue(process.Int32, "100")
	require.NoError(t, err)
	require.Equal(t, int64(100), v.Int64())

	v, err = parseValue(process.Int32, "-0x10")
	require.NoError(t, err)
	require.Equal(t, int64(-16), v.Int64())

	v, err = parseValue(process.Uint64, "18446744073709551615")
	require.NoError(t, err)
	require.Equal(t, uint64(1<<64-1), v.Uint64())

	v, err = parseValue(process.Float32, "1.5")
	require.NoError(t, err)
	require.Equal(t, 1.5, v.Float64())

	v, err = parseValue(process.UTF8, "hello")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), v.Raw)

	v, err = parseValue(process.Bytes, "DE AD, 0xBEEF")
	require.NoError(t, err)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, v.Raw)

	_, err = parseValue(process.Int32, "many")
	require.Error(t, err)
	_, err = parseValue(process.Bytes, "zz")
	require.Error(t, err)
}

func TestParseComparator(t *testing.T) {
	for _, s := range []string{"changed", "unchanged", "increased", "decreased"} {
		_, err := parseComparator(process.Int32, s)
		require.NoError(t, err, s)
	}

	cmp, err := parseComparator(process.Int32, "equals:42")
	require.NoError(t, err)
	require.Equal(t, "equals(42)", cmp.String())

	cmp, err = parseComparator(process.Int32, "increased-by:5")
	require.NoError(t, err)
	require.Equal(t, "increased-by(5)", cmp.String())

	cmp, err = parseComparator(process.Int32, "in-range:10, 20")
	require.NoError(t, err)
	require.Equal(t, "in-range(10, 20)", cmp.String())

	_, err = parseComparator(process.Int32, "in-range:10")
	require.Error(t, err)
	_, err = parseComparator(process.Int32, "jumped")
	require.Error(t, err)
}

func TestParseAddr(t *testing.T) {
	a, err := parseAddr("0x1010")
	require.NoError(t, err)
	require.Equal(t, process.Address(0x1010), a)

	a, err = parseAddr("deadbeef")
	require.NoError(t, err)
	require.Equal(t, process.Address(0xdeadbeef), a)

	_, err = parseAddr("street 5")
	require.Error(t, err)
}
