package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	ListenPort int    `mapstructure:"listen_port"`
	Secret     string `mapstructure:"secret"`
	ReadLimit  int64  `mapstructure:"read_limit"`

	NumWorkers        int    `mapstructure:"num_workers"`
	MaxClientsPerRoom int    `mapstructure:"max_clients_per_room"`
	RtcMinPort        uint16 `mapstructure:"rtc_min_port"`
	RtcMaxPort        uint16 `mapstructure:"rtc_max_port"`
	AnnouncedAddress  string `mapstructure:"announced_address"`

	MaxIncomingBitrate              int `mapstructure:"max_incoming_bitrate"`
	InitialAvailableOutgoingBitrate int `mapstructure:"initial_available_outgoing_bitrate"`

	EngineCallTimeout time.Duration `mapstructure:"engine_call_timeout"`
	JoinRateLimit     int           `mapstructure:"join_rate_limit"`
	JoinRateInterval  time.Duration `mapstructure:"join_rate_interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("listen_port", 3016)
	v.SetDefault("secret", "classcast-dev-secret")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("num_workers", 2)
	v.SetDefault("max_clients_per_room", 50)
	v.SetDefault("rtc_min_port", 40000)
	v.SetDefault("rtc_max_port", 40100)
	v.SetDefault("announced_address", "")
	v.SetDefault("max_incoming_bitrate", 8_000_000)
	v.SetDefault("initial_available_outgoing_bitrate", 5_000_000)
	v.SetDefault("engine_call_timeout", "10s")
	v.SetDefault("join_rate_limit", 5)
	v.SetDefault("join_rate_interval", "10s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.AnnouncedAddress == "" {
		cfg.AnnouncedAddress = LocalIP()
	}
	return &cfg, nil
}

// LocalIP picks the first non-loopback IPv4 address to announce in ICE
// candidates when no address is configured.
func LocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}
