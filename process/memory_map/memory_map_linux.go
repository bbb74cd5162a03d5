//go:build linux

package memory_map

import (
	"fmt"
	"os"
)

// ReadProcessMaps reads and parses /proc/<pid>/maps for a live process.
func ReadProcessMaps(pid int) ([]Region, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseMaps(f)
}
