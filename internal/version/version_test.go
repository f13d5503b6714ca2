package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetVersion(t *testing.T) {
	assert.NotEmpty(t, GetVersion())
	assert.True(t, IsValid(), "default version must be valid semver")
}

func TestGetBaseVersion(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "1.2.3+45.abcdef"
	assert.Equal(t, "1.2.3", GetBaseVersion())

	Version = "not-semver"
	assert.Equal(t, "not-semver", GetBaseVersion(), "unparseable versions pass through")
}

func TestGetInfo(t *testing.T) {
	info, err := GetInfo()
	require.NoError(t, err)
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.String(), "magicagent")
}

func TestGetInfo_InvalidVersion(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "bogus"
	_, err := GetInfo()
	assert.Error(t, err)
}
