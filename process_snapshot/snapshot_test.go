package process_snapshot_test

import (
	"testing"

	"memhound/process"
	"memhound/process/memory_map"
	"memhound/process_snapshot"

	"github.com/stretchr/testify/require"
)

func newTarget(t *testing.T) *process_snapshot.SnapshotTarget {
	t.Helper()
	st := process_snapshot.New()
	require.NoError(t, st.AddRegion(memory_map.Region{
		Start: 0x1000,
		End:   0x2000,
		Perms: memory_map.Read | memory_map.Write,
		Kind:  memory_map.KindHeap,
		Path:  "[heap]",
	}, make([]byte, 0x1000)))
	require.NoError(t, st.AddRegion(memory_map.Region{
		Start: 0x4000,
		End:   0x5000,
		Perms: memory_map.Read,
		Kind:  memory_map.KindLibrary,
		Path:  "/usr/lib/libfoo.so",
	}, make([]byte, 0x1000)))
	return st
}

func TestAddRegionSizeMismatch(t *testing.T) {
	st := process_snapshot.New()
	err := st.AddRegion(memory_map.Region{Start: 0x1000, End: 0x2000}, make([]byte, 16))
	require.Error(t, err)
}

func TestReadWriteAllModes(t *testing.T) {
	st := newTarget(t)
	defer st.Close()

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	for _, mode := range process.AccessModes {
		addr := process.Address(0x1100) + process.Address(mode)*16
		require.NoError(t, st.WriteMemory(addr, payload, mode), mode.String())
		got, err := st.ReadMemory(addr, 4, mode)
		require.NoError(t, err, mode.String())
		require.Equal(t, payload, got, mode.String())
	}
}

func TestAccessValidation(t *testing.T) {
	st := newTarget(t)
	defer st.Close()

	// unmapped address
	_, err := st.ReadMemory(0x9000, 4, process.ModeNormal)
	require.ErrorIs(t, err, process.ErrOutOfRange)

	// range running off a region end
	_, err = st.ReadMemory(0x1ffd, 8, process.ModeNormal)
	require.ErrorIs(t, err, process.ErrOutOfRange)

	// write to a read-only mapping
	err = st.WriteMemory(0x4000, []byte{1}, process.ModeWritethrough)
	require.ErrorIs(t, err, process.ErrPermissionDenied)

	// but the backdoor ignores permissions
	require.NoError(t, st.SetBytes(0x4000, []byte{1}))
	got, err := st.ReadMemory(0x4000, 1, process.ModeNormal)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, got)
}

func TestDeadTarget(t *testing.T) {
	st := newTarget(t)
	st.SetAlive(false)

	require.False(t, st.Alive())
	_, err := st.ReadMemory(0x1000, 4, process.ModeNormal)
	require.ErrorIs(t, err, process.ErrAttachLost)
	err = st.WriteMemory(0x1000, []byte{1}, process.ModeNormal)
	require.ErrorIs(t, err, process.ErrAttachLost)
	_, err = st.RefreshRegions()
	require.ErrorIs(t, err, process.ErrAttachLost)
}

func TestFaultInjection(t *testing.T) {
	st := newTarget(t)
	defer st.Close()

	st.FaultNext(0x1200, 2)

	_, err := st.ReadMemory(0x1200, 4, process.ModePgFault)
	require.ErrorIs(t, err, process.ErrFaulted)
	_, err = st.ReadMemory(0x1200, 4, process.ModePgFault)
	require.ErrorIs(t, err, process.ErrFaulted)

	// countdown exhausted
	_, err = st.ReadMemory(0x1200, 4, process.ModePgFault)
	require.NoError(t, err)
}

func TestBatchIndependence(t *testing.T) {
	st := newTarget(t)
	defer st.Close()

	require.NoError(t, st.SetBytes(0x1000, []byte{7}))

	results := st.ReadBatch([]process.ReadRequest{
		{Addr: 0x1000, Size: 1},
		{Addr: 0x9000, Size: 1},
		{Addr: 0x1004, Size: 1},
	}, process.ModeNormal)
	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	require.Equal(t, []byte{7}, results[0].Data)
	require.ErrorIs(t, results[1].Err, process.ErrOutOfRange)
	require.NoError(t, results[2].Err)

	errs := st.WriteBatch([]process.WriteRequest{
		{Addr: 0x1010, Data: []byte{1}},
		{Addr: 0x4000, Data: []byte{1}},
	}, process.ModeNormal)
	require.NoError(t, errs[0])
	require.ErrorIs(t, errs[1], process.ErrPermissionDenied)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	st := newTarget(t)
	defer st.Close()

	require.NoError(t, st.SetBytes(0x1234, []byte("marker")))

	dir := t.TempDir()
	require.NoError(t, st.Save(dir))

	loaded, err := process_snapshot.Load(dir)
	require.NoError(t, err)
	defer loaded.Close()

	require.Equal(t, 2, loaded.Regions().Len())

	got, err := loaded.ReadMemory(0x1234, 6, process.ModeNormal)
	require.NoError(t, err)
	require.Equal(t, []byte("marker"), got)

	r := loaded.Regions().Find(0x4000)
	require.NotNil(t, r)
	require.Equal(t, "/usr/lib/libfoo.so", r.Path)
	require.Equal(t, memory_map.KindLibrary, r.Kind)
	require.True(t, r.Perms.Has(memory_map.Read))
	require.False(t, r.Perms.Has(memory_map.Write))
}

func TestLoadMissingDir(t *testing.T) {
	_, err := process_snapshot.Load(t.TempDir() + "/nope")
	require.Error(t, err)
}

func TestCapture(t *testing.T) {
	src := newTarget(t)
	defer src.Close()
	require.NoError(t, src.SetBytes(0x1500, []byte{0xAA, 0xBB}))

	dup, err := process_snapshot.Capture(src)
	require.NoError(t, err)
	defer dup.Close()

	got, err := dup.ReadMemory(0x1500, 2, process.ModeNormal)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xBB}, got)

	// the copy is independent of the source
	require.NoError(t, src.SetBytes(0x1500, []byte{0x00, 0x00}))
	got, err = dup.ReadMemory(0x1500, 2, process.ModeNormal)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xBB}, got)
}
