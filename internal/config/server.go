package config

import (
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Server holds the relay's configuration, read from an optional yaml file
// plus environment overrides.
type Server struct {
	Env  string     `yaml:"env" env:"ENV" env-default:"local"`
	HTTP HTTPConfig `yaml:"http"`
}

type HTTPConfig struct {
	Address string `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
}

// MustLoadServer reads the server config from CONFIG_PATH (or the given
// default path) when the file exists, otherwise from the environment alone.
// It panics on malformed input; the relay cannot start half-configured.
func MustLoadServer() *Server {
	path := os.Getenv("CONFIG_PATH")

	var cfg Server
	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			panic("config file does not exist: " + path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			panic("cannot read config: " + err.Error())
		}
		return &cfg
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		panic("cannot read config from environment: " + err.Error())
	}
	return &cfg
}
