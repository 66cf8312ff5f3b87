package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUUID(t *testing.T) {
	a, b := UUID(), UUID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestMd5Hash(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Md5Hash(""))
	assert.Equal(t, Md5Hash("SN1.path"), Md5Hash("SN1.path"))
	assert.NotEqual(t, Md5Hash("SN1.path"), Md5Hash("SN2.path"))
}

func TestInSlice(t *testing.T) {
	assert.True(t, InSlice("info", []string{"info", "info_group"}))
	assert.False(t, InSlice("wifi", []string{"info", "info_group"}))
	assert.False(t, InSlice("x", nil))
}
