package process_test

import (
	"testing"

	"memhound/process"

	"github.com/stretchr/testify/require"
)

func TestValueTypeWidth(t *testing.T) {
	cases := []struct {
		typ   process.ValueType
		width process.Size
	}{
		{process.Int8, 1},
		{process.Uint8, 1},
		{process.Int16, 2},
		{process.Uint16, 2},
		{process.Int32, 4},
		{process.Uint32, 4},
		{process.Float32, 4},
		{process.Int64, 8},
		{process.Uint64, 8},
		{process.Float64, 8},
		{process.UTF8, 0},
		{process.Bytes, 0},
	}
	for _, c := range cases {
		require.Equal(t, c.width, c.typ.Width(), c.typ.String())
	}
}

func TestValueTypeAlignment(t *testing.T) {
	require.Equal(t, process.Size(4), process.Int32.Alignment())
	require.Equal(t, process.Size(8), process.Float64.Alignment())
	// variable-width types step bytewise
	require.Equal(t, process.Size(1), process.UTF8.Alignment())
	require.Equal(t, process.Size(1), process.Bytes.Alignment())
}

func TestParseValueType(t *testing.T) {
	typ, err := process.ParseValueType("int32")
	require.NoError(t, err)
	require.Equal(t, process.Int32, typ)

	typ, err = process.ParseValueType("float64")
	require.NoError(t, err)
	require.Equal(t, process.Float64, typ)

	_, err = process.ParseValueType("quadword")
	require.Error(t, err)
}

func TestEncodeIntRoundTrip(t *testing.T) {
	cases := []struct {
		typ process.ValueType
		in  int64
	}{
		{process.Int8, -1},
		{process.Int16, -30000},
		{process.Int32, 100},
		{process.Int32, -100},
		{process.Int64, 1 << 40},
		{process.Uint8, 255},
		{process.Uint16, 65535},
		{process.Uint32, 1 << 31},
	}
	for _, c := range cases {
		v, err := process.EncodeInt(c.typ, c.in)
		require.NoError(t, err)
		require.Equal(t, c.typ.Width(), v.Len())
		require.Equal(t, c.in, v.Int64(), "%s %d", c.typ, c.in)
	}
}

func TestEncodeIntRejectsVariableWidth(t *testing.T) {
	_, err := process.EncodeInt(process.UTF8, 1)
	require.Error(t, err)
	_, err = process.EncodeInt(process.Bytes, 1)
	require.Error(t, err)
}

func TestEncodeIntLittleEndian(t *testing.T) {
	v, err := process.EncodeInt(process.Int32, 100)
	require.NoError(t, err)
	require.Equal(t, []byte{0x64, 0, 0, 0}, v.Raw)
}

func TestEncodeFloatRoundTrip(t *testing.T) {
	v, err := process.EncodeFloat(process.Float64, 3.25)
	require.NoError(t, err)
	require.Equal(t, 3.25, v.Float64())

	v, err = process.EncodeFloat(process.Float32, 1.5)
	require.NoError(t, err)
	require.Equal(t, 1.5, v.Float64())

	// integral target: literal truncated to the integer width
	v, err = process.EncodeFloat(process.Int16, 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), v.Int64())
}

func TestEncodeText(t *testing.T) {
	v := process.EncodeText("score")
	require.Equal(t, process.UTF8, v.Type)
	require.Equal(t, []byte("score"), v.Raw)
	require.True(t, v.EqualBytes([]byte("score")))
	require.False(t, v.EqualBytes([]byte("scores")))
}

func TestValueString(t *testing.T) {
	v, _ := process.EncodeInt(process.Int32, -5)
	require.Equal(t, "-5", v.String())

	v, _ = process.EncodeInt(process.Uint8, 200)
	require.Equal(t, "200", v.String())

	v, _ = process.EncodeFloat(process.Float64, 0.5)
	require.Equal(t, "0.5", v.String())

	require.Equal(t, `"hi"`, process.EncodeText("hi").String())
}

func TestPointerCodec(t *testing.T) {
	addr := process.Address(0x00007f1234567890)
	raw := process.EncodePointer(addr)
	require.Len(t, raw, process.PointerSize)
	require.Equal(t, addr, process.DecodePointer(raw))

	// short buffers decode to the null pointer
	require.Equal(t, process.Address(0), process.DecodePointer(raw[:4]))
}

func TestAddressString(t *testing.T) {
	require.Equal(t, "0x1010", process.Address(0x1010).String())
}

func TestAccessModeString(t *testing.T) {
	require.Len(t, process.AccessModes, 4)
	names := make(map[string]bool)
	for _, m := range process.AccessModes {
		names[m.String()] = true
	}
	require.Len(t, names, 4)
}
