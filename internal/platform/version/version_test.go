package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()

	assert.Equal(t, Service, info.Service)
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestFillFromVCS(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs", Value: "git"},
		{Key: "vcs.revision", Value: "4f2a9c1"},
		{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
	}

	t.Run("fills unset fields", func(t *testing.T) {
		info := Info{Commit: "unknown", BuildTime: "unknown"}
		fillFromVCS(&info, settings)
		assert.Equal(t, "4f2a9c1", info.Commit)
		assert.Equal(t, "2026-10-01T12:00:00Z", info.BuildTime)
	})

	t.Run("ldflags win", func(t *testing.T) {
		info := Info{Commit: "abc", BuildTime: "yesterday"}
		fillFromVCS(&info, settings)
		assert.Equal(t, "abc", info.Commit)
		assert.Equal(t, "yesterday", info.BuildTime)
	})
}
