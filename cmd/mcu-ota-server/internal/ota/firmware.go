package ota

import (
	"fmt"
	"math"

	"github.com/Masterminds/semver/v3"
)

// Version is the three part firmware version as it travels on the wire.
type Version struct {
	Major uint8 `json:"major"`
	Minor uint8 `json:"minor"`
	Patch uint8 `json:"patch"`
}

// ParseVersion parses a "major.minor.patch" string, every part must fit into a byte.
func ParseVersion(s string) (Version, error) {
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return Version{}, Invalid("version %q: %v", s, err)
	}
	if v.Prerelease() != "" || v.Metadata() != "" {
		return Version{}, Invalid("version %q must not carry prerelease or metadata", s)
	}
	for _, part := range []uint64{v.Major(), v.Minor(), v.Patch()} {
		if part > math.MaxUint8 {
			return Version{}, Invalid("version %q exceeds %d in one of its parts", s, math.MaxUint8)
		}
	}
	return Version{Major: uint8(v.Major()), Minor: uint8(v.Minor()), Patch: uint8(v.Patch())}, nil
}

// Compare orders versions lexicographically on (major, minor, patch).
// It returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpByte(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpByte(v.Minor, o.Minor)
	default:
		return cmpByte(v.Patch, o.Patch)
	}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func cmpByte(a, b uint8) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Info describes a firmware image without its content.
type Info struct {
	Code    uint16  `json:"code"`
	Version Version `json:"version"`
	Size    uint32  `json:"size"`
	// Locator is where the image came from, a URL, an object key or empty.
	Locator string `json:"locator,omitempty"`
}

func (i Info) String() string {
	return fmt.Sprintf("%04X-%s", i.Code, i.Version)
}

// Artifact is a firmware image together with its description. Artifacts are
// shared between connections and must not be modified after creation.
type Artifact struct {
	Info
	Data []byte `json:"-"`
}

// NewArtifact creates an artifact whose size is taken from the data.
func NewArtifact(code uint16, version Version, locator string, data []byte) (*Artifact, error) {
	if uint64(len(data)) > math.MaxUint32 {
		return nil, Invalid("firmware %04X-%s is too large: %d bytes", code, version, len(data))
	}
	return &Artifact{
		Info: Info{
			Code:    code,
			Version: version,
			Size:    uint32(len(data)),
			Locator: locator,
		},
		Data: data,
	}, nil
}

// Key identifies an artifact inside a catalog.
type Key struct {
	Code    uint16
	Version Version
}

// Key returns the identity of this artifact.
func (a *Artifact) Key() Key {
	return Key{Code: a.Code, Version: a.Version}
}
