package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	for _, tc := range []struct {
		Name   string
		Input  debug.BuildInfo
		Output Value
		String string
	}{
		{
			Name:   "Empty",
			Output: Value{Name: "dev", Raw: "0.0.1-dev"},
			String: "0.0.1-dev",
		},
		{
			Name: "Main",
			Input: debug.BuildInfo{
				Main: debug.Module{
					Path:    "github.com/go-faster/pgz/cmd/pgz",
					Version: "v1.5.10",
				},
			},
			Output: Value{Major: 1, Minor: 5, Patch: 10, Raw: "v1.5.10"},
			String: "v1.5.10",
		},
		{
			Name: "Devel",
			Input: debug.BuildInfo{
				Main: debug.Module{
					Path:    "github.com/go-faster/pgz",
					Version: "(devel)",
				},
				Settings: []debug.BuildSetting{
					{Key: "vcs", Value: "git"},
					{Key: "vcs.revision", Value: "4f1c2d7e9a0b33c1"},
				},
			},
			Output: Value{Name: "dev", Raw: "0.0.1-dev", Revision: "4f1c2d7"},
			String: "0.0.1-dev+4f1c2d7",
		},
		{
			Name: "Dependency",
			Input: debug.BuildInfo{
				Main: debug.Module{
					Path: "example.com/app",
				},
				Deps: []*debug.Module{
					{
						Path:    "github.com/go-faster/pgz",
						Version: "v0.3.1-alpha.0",
					},
				},
			},
			Output: Value{Minor: 3, Patch: 1, Name: "alpha.0", Raw: "v0.3.1-alpha.0"},
			String: "v0.3.1-alpha.0",
		},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			v := Extract(&tc.Input)
			require.Equal(t, tc.Output, v)
			require.Equal(t, tc.String, v.String())
		})
	}
}

func TestGet(t *testing.T) {
	v := Get()
	require.NotEmpty(t, v.Raw)
	require.Equal(t, v, Get())
}
