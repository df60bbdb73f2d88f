package config

import (
	"errors"
	"os"

	"github.com/spf13/viper"
)

type PeerConfig struct {
	Network          string `mapstructure:"network"`
	Address          string `mapstructure:"address"`
	RequestTimeout   string `mapstructure:"request_timeout"`
	ReconnectInitial string `mapstructure:"reconnect_initial"`
	ReconnectMax     string `mapstructure:"reconnect_max"`
}

type BrowserConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type Config struct {
	Peer      PeerConfig    `mapstructure:"peer"`
	Browser   BrowserConfig `mapstructure:"browser"`
	Apps      []string      `mapstructure:"apps"`
	DebugMode bool          `mapstructure:"debug_mode"`
	AppName   string        `mapstructure:"app_name"`
}

const configFile = "spookfox.yaml"

var config Config
var initialized = false

func setDefaults(v *viper.Viper) {
	v.SetDefault("peer.network", "unix")
	v.SetDefault("peer.address", "/tmp/spookfox.socket")
	v.SetDefault("peer.request_timeout", "2s")
	v.SetDefault("peer.reconnect_initial", "1s")
	v.SetDefault("peer.reconnect_max", "30s")
	v.SetDefault("browser.listen_addr", "127.0.0.1:9572")
	v.SetDefault("browser.allowed_origins", []string{})
	v.SetDefault("apps", []string{"tabs"})
	v.SetDefault("debug_mode", false)
	v.SetDefault("app_name", "spookfox-broker")
}

func ReadConfig() (Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configFile); os.IsNotExist(statErr) {
			if writeErr := v.SafeWriteConfigAs(configFile); writeErr != nil {
				return config, writeErr
			}
			return config, errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")
		}
		return config, errors.New("the configuration file does not contain valid YAML")
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, err
	}

	initialized = true
	return config, nil
}

func GetConfig() (Config, error) {
	if initialized {
		return config, nil
	}
	return ReadConfig()
}
