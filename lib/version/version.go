// Package version reports what build of vardex is running, from the
// VCS stamp the Go toolchain embeds. Builds without a stamp, and
// builds from a modified tree, fall back to a checksum of the binary
// itself.
package version

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"
)

type Build struct {
	Revision     string
	RevisionTime string
	Modified     bool
	GoVersion    string
	Checksum     string
}

// String renders a short single-token identifier for the build.
func (b *Build) String() string {
	var rv string
	if b.Revision != "" {
		rv = b.Revision
		if len(rv) > 12 {
			rv = rv[:12]
		}
		if b.Modified {
			rv += "-modified"
		}
	}

	if (rv == "" || b.Modified) && b.Checksum != "" {
		if rv != "" {
			rv += "@"
		}
		rv += "sha256:" + b.Checksum[:12]
	}

	if rv == "" {
		rv = "unknown"
	}
	return rv
}

var (
	current    *Build
	currentErr error
	once       sync.Once
)

// Current returns the build information of the running binary,
// computing it on first use.
func Current() (*Build, error) {
	once.Do(func() {
		current, currentErr = readBuild()
	})
	return current, currentErr
}

func readBuild() (*Build, error) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, errors.New("no build info in binary")
	}

	rv := &Build{GoVersion: info.GoVersion}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			rv.Revision = setting.Value
		case "vcs.time":
			rv.RevisionTime = setting.Value
		case "vcs.modified":
			rv.Modified = setting.Value == "true"
		}
	}

	if rv.Revision == "" || rv.Modified {
		checksum, err := binaryChecksum()
		if err != nil {
			return nil, err
		}
		rv.Checksum = checksum
	}

	return rv, nil
}

func binaryChecksum() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}

	f, err := os.Open(execPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
