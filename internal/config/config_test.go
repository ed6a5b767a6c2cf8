package config

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "nonexistent")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3016, cfg.ListenPort)
	assert.Equal(t, 2, cfg.NumWorkers)
	assert.Equal(t, 50, cfg.MaxClientsPerRoom)
	assert.Equal(t, uint16(40000), cfg.RtcMinPort)
	assert.Equal(t, uint16(40100), cfg.RtcMaxPort)
	assert.Equal(t, 8_000_000, cfg.MaxIncomingBitrate)
	assert.Equal(t, 5_000_000, cfg.InitialAvailableOutgoingBitrate)
	assert.Equal(t, 10*time.Second, cfg.EngineCallTimeout)
	assert.Equal(t, 5, cfg.JoinRateLimit)
	assert.Equal(t, 10*time.Second, cfg.JoinRateInterval)
	assert.NotEmpty(t, cfg.AnnouncedAddress, "falls back to a detected local address")
}

func TestLocalIP(t *testing.T) {
	ip := net.ParseIP(LocalIP())
	require.NotNil(t, ip)
	assert.NotNil(t, ip.To4())
}
