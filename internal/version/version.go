// Package version resolves current module version.
package version

import (
	"runtime/debug"
	"strings"
	"sync"

	"github.com/hashicorp/go-version"
)

const pkg = "github.com/go-faster/pgz"

var once struct {
	version Value
	sync.Once
}

// Value describes module version.
type Value struct {
	Major int
	Minor int
	Patch int
	Name  string
	Raw   string
	// Revision is VCS revision of dev build, if recorded.
	Revision string
}

func (v Value) String() string {
	if v.Revision == "" {
		return v.Raw
	}
	return v.Raw + "+" + v.Revision
}

func revision(info *debug.BuildInfo) string {
	for _, s := range info.Settings {
		if s.Key != "vcs.revision" {
			continue
		}
		if len(s.Value) > 7 {
			return s.Value[:7]
		}
		return s.Value
	}
	return ""
}

// Extract version Value from BuildInfo.
func Extract(info *debug.BuildInfo) Value {
	var raw string
	if strings.HasPrefix(info.Main.Path, pkg) {
		raw = info.Main.Version
	}
	for _, d := range info.Deps {
		if strings.HasPrefix(d.Path, pkg) {
			raw = d.Version
			break
		}
	}
	if v, err := version.NewVersion(raw); err == nil {
		ver := Value{
			Name: v.Prerelease(), // "alpha", "beta.1"
			Raw:  raw,
		}
		if s := v.Segments(); len(s) > 2 {
			ver.Major, ver.Minor, ver.Patch = s[0], s[1], s[2]
		}
		return ver
	}
	// Zero-versioned dev version, e.g. "(devel)" of go build in module.
	return Value{
		Name:     "dev",
		Raw:      "0.0.1-dev",
		Revision: revision(info),
	}
}

// Get optimistically gets current module version.
//
// Does not handle replace directives.
func Get() Value {
	once.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			once.version = Value{Name: "dev", Raw: "0.0.1-dev"}
			return
		}
		once.version = Extract(info)
	})

	return once.version
}
