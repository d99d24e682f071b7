package common

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveBuild_LdflagsWin(t *testing.T) {
	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "4f2a9c1e0b7d"},
			{Key: "vcs.time", Value: "2025-07-01T00:00:00Z"},
		}}, true
	}
	info := resolveBuild("1.2.0", "2025-08-01", "abc1234", read)
	assert.Equal(t, "1.2.0", info.Version)
	assert.Equal(t, "2025-08-01", info.Build)
	assert.Equal(t, "abc1234", info.Commit)
	assert.NotEmpty(t, info.GoVersion)
}

func TestResolveBuild_FallsBackToVCSStamp(t *testing.T) {
	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "(devel)"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "4f2a9c1e0b7d"},
				{Key: "vcs.time", Value: "2025-07-01T00:00:00Z"},
				{Key: "vcs.modified", Value: "true"},
			},
		}, true
	}
	info := resolveBuild("dev", "unknown", "unknown", read)
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "4f2a9c1", info.Commit)
	assert.Equal(t, "2025-07-01T00:00:00Z", info.Build)
	assert.Equal(t, "dev (build: 2025-07-01T00:00:00Z, commit: 4f2a9c1+dirty)", info.String())
}

func TestResolveBuild_NoBuildInfo(t *testing.T) {
	info := resolveBuild("dev", "unknown", "unknown", func() (*debug.BuildInfo, bool) { return nil, false })
	assert.Equal(t, "dev (build: unknown, commit: unknown)", info.String())
}
