package config

type Config struct {
	Server     `yaml:"server"`
	Transcoder `yaml:"transcoder"`
	Client     `yaml:"client"`
}

type Server struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	AllowSimulated bool   `yaml:"allow_simulated"`
	AckChunks      bool   `yaml:"ack_chunks"`
}

type Transcoder struct {
	FFmpegPath       string `yaml:"ffmpeg_path"`
	IngestURL        string `yaml:"ingest_url"`
	StopGraceSeconds int    `yaml:"stop_grace_seconds"`
}

type Client struct {
	Endpoints             []string `yaml:"endpoints"`
	ConnectTimeoutSeconds int      `yaml:"connect_timeout_seconds"`
	HeartbeatSeconds      int      `yaml:"heartbeat_seconds"`
	ReconnectSeconds      int      `yaml:"reconnect_seconds"`
	MaxReconnects         int      `yaml:"max_reconnects"`
}
