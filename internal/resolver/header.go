package resolver

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// VersionHeader holds the version macros of BKE_blender_version.h.
type VersionHeader struct {
	Version int    // BLENDER_VERSION, e.g. 402 for 4.2
	Patch   int    // BLENDER_VERSION_PATCH
	Cycle   string // BLENDER_VERSION_CYCLE: alpha, beta, rc or release
}

// Major returns "X.Y".
func (h VersionHeader) Major() string {
	return fmt.Sprintf("%d.%d", h.Version/100, h.Version%100)
}

// Minor returns "X.Y.Z".
func (h VersionHeader) Minor() string {
	return fmt.Sprintf("%s.%d", h.Major(), h.Patch)
}

// ParseVersionHeader reads the #define lines of the version header.
func ParseVersionHeader(r io.Reader) (VersionHeader, error) {
	var h VersionHeader
	var haveVersion, havePatch bool

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 || fields[0] != "#define" {
			continue
		}

		switch fields[1] {
		case "BLENDER_VERSION":
			v, err := strconv.Atoi(fields[2])
			if err != nil {
				return h, fmt.Errorf("parsing BLENDER_VERSION %q: %w", fields[2], err)
			}
			h.Version = v
			haveVersion = true
		case "BLENDER_VERSION_PATCH":
			v, err := strconv.Atoi(fields[2])
			if err != nil {
				return h, fmt.Errorf("parsing BLENDER_VERSION_PATCH %q: %w", fields[2], err)
			}
			h.Patch = v
			havePatch = true
		case "BLENDER_VERSION_CYCLE":
			h.Cycle = fields[2]
		}
	}
	if err := sc.Err(); err != nil {
		return h, fmt.Errorf("reading version header: %w", err)
	}

	if !haveVersion || !havePatch {
		return h, fmt.Errorf("version header is missing BLENDER_VERSION or BLENDER_VERSION_PATCH")
	}
	if h.Cycle == "" {
		h.Cycle = "release"
	}
	return h, nil
}
