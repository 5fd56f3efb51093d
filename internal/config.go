package internal

import (
	"fmt"

	"github.com/spf13/viper"
)

type BufferMgrConfig struct {
	Storage struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"storage"`
	Buffer struct {
		NumBufs int  `mapstructure:"num_bufs"`
		Debug   bool `mapstructure:"debug"`
	} `mapstructure:"buffer"`
}

func LoadConfig(path string) (*BufferMgrConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg BufferMgrConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
