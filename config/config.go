package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// LoadConfig reads the yaml config at path and fills in defaults for
// anything left unset.
func LoadConfig(path string) (c Config, err error) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	err = decoder.Decode(&c)
	if err != nil {
		return
	}

	c.applyDefaults()
	return
}

// Default returns a config with all defaults applied and no file read.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Transcoder.FFmpegPath == "" {
		c.Transcoder.FFmpegPath = "ffmpeg"
	}
	if c.Transcoder.IngestURL == "" {
		c.Transcoder.IngestURL = "rtmp://a.rtmp.youtube.com/live2"
	}
	if c.Transcoder.StopGraceSeconds == 0 {
		c.Transcoder.StopGraceSeconds = 3
	}
	if len(c.Client.Endpoints) == 0 {
		c.Client.Endpoints = []string{"http://localhost:8080"}
	}
	if c.Client.ConnectTimeoutSeconds == 0 {
		c.Client.ConnectTimeoutSeconds = 8
	}
	if c.Client.HeartbeatSeconds == 0 {
		c.Client.HeartbeatSeconds = 15
	}
	if c.Client.ReconnectSeconds == 0 {
		c.Client.ReconnectSeconds = 5
	}
	if c.Client.MaxReconnects == 0 {
		c.Client.MaxReconnects = 5
	}
}
