package process_snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"memhound/process"
	"memhound/process/memory_map"

	"gopkg.in/yaml.v3"
)

const indexFile = "regions.yaml"

type regionEntry struct {
	Start  uint64 `yaml:"start"`
	End    uint64 `yaml:"end"`
	Perms  string `yaml:"perms"`
	Path   string `yaml:"path,omitempty"`
	Offset uint64 `yaml:"offset,omitempty"`
	Inode  uint64 `yaml:"inode,omitempty"`
	Blob   string `yaml:"blob"`
}

type regionIndex struct {
	Regions []regionEntry `yaml:"regions"`
}

// Save writes every region's bytes as a blob file plus a regions.yaml index
// into dir, which is created if missing.
func (t *SnapshotTarget) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dump dir: %w", err)
	}

	t.mu.Lock()
	entries := make([]regionData, len(t.regions))
	copy(entries, t.regions)
	t.mu.Unlock()

	index := regionIndex{}
	for _, rd := range entries {
		blob := fmt.Sprintf("region_%016x.bin", rd.region.Start)
		if err := os.WriteFile(filepath.Join(dir, blob), rd.data, 0o644); err != nil {
			return fmt.Errorf("write blob %s: %w", blob, err)
		}
		index.Regions = append(index.Regions, regionEntry{
			Start:  rd.region.Start,
			End:    rd.region.End,
			Perms:  rd.region.Perms.String(),
			Path:   rd.region.Path,
			Offset: rd.region.Offset,
			Inode:  rd.region.Inode,
			Blob:   blob,
		})
	}

	data, err := yaml.Marshal(&index)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, indexFile), data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	t.log.Infoln("Saved", len(entries), "regions to", dir)
	return nil
}

// Load builds a snapshot target from a directory written by Save.
func Load(dir string) (*SnapshotTarget, error) {
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	var index regionIndex
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}

	t := New()
	for _, e := range index.Regions {
		blob, err := os.ReadFile(filepath.Join(dir, e.Blob))
		if err != nil {
			return nil, fmt.Errorf("read blob %s: %w", e.Blob, err)
		}
		region := memory_map.Region{
			Start:  e.Start,
			End:    e.End,
			Perms:  memory_map.ParsePerms(e.Perms),
			Kind:   memory_map.ClassifyPath(e.Path),
			Path:   e.Path,
			Offset: e.Offset,
			Inode:  e.Inode,
		}
		if err := t.AddRegion(region, blob); err != nil {
			return nil, err
		}
	}

	t.log.Infoln("Loaded", len(index.Regions), "regions from", dir)
	return t, nil
}

// Capture copies every readable region of a live target into a new snapshot
// target, the offline-analysis entry point.
func Capture(src process.Target) (*SnapshotTarget, error) {
	snap, err := src.RefreshRegions()
	if err != nil {
		return nil, err
	}

	t := New()
	for _, region := range snap.Filter(memory_map.Criteria{Require: memory_map.Read}) {
		data, err := src.ReadMemory(process.Address(region.Start), process.Size(region.Size()), process.ModePgFault)
		if err != nil {
			// unreadable regions are skipped, not fatal
			continue
		}
		if err := t.AddRegion(region, data); err != nil {
			return nil, err
		}
	}
	return t, nil
}
