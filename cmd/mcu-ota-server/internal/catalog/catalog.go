// Package catalog holds the firmware images served to devices.
//
// A Catalog is an immutable snapshot. Connections read the snapshot published
// in a Store while the Refresher replaces it wholesale in the background.
package catalog

import (
	"time"

	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	"github.com/samber/lo"
)

// Catalog is a snapshot of all known firmware images plus the device config in
// effect when the snapshot was taken.
type Catalog struct {
	artifacts  []*ota.Artifact
	duplicates int
	config     *ota.DeviceConfig
	created    time.Time
}

// New creates a catalog from the given artifacts. Artifacts sharing code and
// version are collapsed, the one inserted last wins and takes the position of
// the first occurrence.
func New(artifacts ...*ota.Artifact) *Catalog {
	index := make(map[ota.Key]int, len(artifacts))
	unique := make([]*ota.Artifact, 0, len(artifacts))
	duplicates := 0
	for _, a := range artifacts {
		if a == nil {
			continue
		}
		if i, ok := index[a.Key()]; ok {
			unique[i] = a
			duplicates++
			continue
		}
		index[a.Key()] = len(unique)
		unique = append(unique, a)
	}
	return &Catalog{
		artifacts:  unique,
		duplicates: duplicates,
		created:    time.Now(),
	}
}

// WithConfig returns a copy of the catalog carrying the given device config.
func (c *Catalog) WithConfig(cfg *ota.DeviceConfig) *Catalog {
	clone := *c
	clone.config = cfg
	return &clone
}

// Len returns the number of artifacts.
func (c *Catalog) Len() int {
	return len(c.artifacts)
}

// Duplicates returns how many artifacts were replaced by a later one with the
// same code and version.
func (c *Catalog) Duplicates() int {
	return c.duplicates
}

// Bytes returns the total size of all firmware images.
func (c *Catalog) Bytes() uint64 {
	return lo.SumBy(c.artifacts, func(a *ota.Artifact) uint64 {
		return uint64(len(a.Data))
	})
}

// Created returns when this snapshot was built.
func (c *Catalog) Created() time.Time {
	return c.created
}

// Infos lists the artifacts of this catalog without their content.
func (c *Catalog) Infos() []ota.Info {
	return lo.Map(c.artifacts, func(a *ota.Artifact, _ int) ota.Info {
		return a.Info
	})
}

// Config returns the device config of this snapshot, nil if there is none.
func (c *Catalog) Config() *ota.DeviceConfig {
	return c.config
}

// FindLatest returns the artifact with the highest version for code.
func (c *Catalog) FindLatest(code uint16) (*ota.Artifact, bool) {
	candidates := lo.Filter(c.artifacts, func(a *ota.Artifact, _ int) bool {
		return a.Code == code
	})

	var latest *ota.Artifact
	for _, a := range candidates {
		if latest == nil || a.Version.Compare(latest.Version) >= 0 {
			latest = a
		}
	}
	return latest, latest != nil
}

// FindExact returns the artifact matching code and version.
func (c *Catalog) FindExact(code uint16, version ota.Version) (*ota.Artifact, bool) {
	return lo.Find(c.artifacts, func(a *ota.Artifact) bool {
		return a.Code == code && a.Version == version
	})
}

// Slice returns the index-th chunk of size bytes from data. The last chunk is
// shorter when the size does not divide the data. It returns false once the
// chunk starts at or beyond the end of data, and for a size of zero.
func Slice(data []byte, index, size int) ([]byte, bool) {
	if index < 0 || size <= 0 {
		return nil, false
	}
	// index*size may not fit into a 32 bit int
	offset := int64(index) * int64(size)
	if offset >= int64(len(data)) {
		return nil, false
	}
	start := int(offset)
	end := start + min(size, len(data)-start)
	return data[start:end], true
}
