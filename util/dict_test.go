package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDictGet(t *testing.T) {
	data := map[string]interface{}{
		"telemetry": map[string]interface{}{
			"cpu": map[string]interface{}{
				"used_percent": 12.5,
			},
			"filesystems": []interface{}{
				map[string]interface{}{"device": "/dev/ada0"},
			},
		},
		"empty": nil,
	}

	t.Run("nested map", func(t *testing.T) {
		assert.Equal(t, 12.5, DictGet(data, "telemetry.cpu.used_percent", nil))
	})

	t.Run("slice index", func(t *testing.T) {
		assert.Equal(t, "/dev/ada0", DictGet(data, "telemetry.filesystems.0.device", nil))
	})

	t.Run("missing segments return default", func(t *testing.T) {
		assert.Equal(t, "none", DictGet(data, "telemetry.memory.used_percent", "none"))
		assert.Equal(t, "none", DictGet(data, "telemetry.filesystems.3.device", "none"))
		assert.Equal(t, "none", DictGet(data, "telemetry.cpu.used_percent.deeper", "none"))
		assert.Equal(t, "none", DictGet(data, "empty", "none"))
		assert.Nil(t, DictGet(nil, "anything", nil))
	})
}

func TestToFloat(t *testing.T) {
	value, ok := ToFloat("42.5")
	assert.True(t, ok)
	assert.Equal(t, 42.5, value)

	value, ok = ToFloat(float64(7))
	assert.True(t, ok)
	assert.Equal(t, 7.0, value)

	_, ok = ToFloat("n/a")
	assert.False(t, ok)

	_, ok = ToFloat(nil)
	assert.False(t, ok)
}
