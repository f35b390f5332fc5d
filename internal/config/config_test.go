package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Defaults(t *testing.T) {
	// 无配置文件时使用默认值
	require.NoError(t, Init(""))

	cfg := Get()
	require.NotNil(t, cfg)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Mode)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Database.AutoMigrate)

	assert.Equal(t, "CAM001", cfg.Camera.SerialNumber)
	assert.Equal(t, 30, cfg.Camera.FrameRate)
	assert.Equal(t, "mjpeg", cfg.Camera.Format)
	assert.Equal(t, 640, cfg.Camera.Width)
	assert.Equal(t, 480, cfg.Camera.Height)
	assert.Equal(t, "continuous", cfg.Camera.Mode)
	assert.Equal(t, 30, cfg.Camera.FrameCount)

	assert.Equal(t, "/ws/preview", cfg.WebSocket.Path)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Camera: CameraConfig{
				SerialNumber: "CAM001",
				FrameRate:    30,
				Format:       "mjpeg",
				Width:        640,
				Height:       480,
				Mode:         "continuous",
				FrameCount:   30,
			},
		}
	}

	assert.NoError(t, validate(base()))

	c := base()
	c.Camera.FrameRate = 0
	assert.Error(t, validate(c))

	c = base()
	c.Camera.Width = -1
	assert.Error(t, validate(c))

	c = base()
	c.Camera.FrameCount = 0
	assert.Error(t, validate(c))

	c = base()
	c.Camera.Mode = "burst"
	assert.Error(t, validate(c))
}
