// Package server configures the HTTP API.
package server

import (
	"net"
	"strconv"
	"time"
)

type Config struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	// APIKey, when set, is required in the X-API-Key header.
	APIKey string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit         float64 `json:"rateLimit" yaml:"rateLimit"`
	RateBurst         int     `json:"rateBurst" yaml:"rateBurst"`
	UploadDir         string  `json:"uploadDir,omitempty" yaml:"uploadDir,omitempty"`
	PublicBaseURL     string  `json:"publicBaseURL,omitempty" yaml:"publicBaseURL,omitempty"`
	MaxUploadMB       int     `json:"maxUploadMB" yaml:"maxUploadMB"`
	AuxTimeoutSeconds int     `json:"auxTimeoutSeconds" yaml:"auxTimeoutSeconds"`
}

func DefaultConfig() Config {
	return Config{
		Host:              "127.0.0.1",
		Port:              18790,
		RateLimit:         5,
		RateBurst:         10,
		MaxUploadMB:       20,
		AuxTimeoutSeconds: 5,
	}
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) AuxTimeout() time.Duration {
	return time.Duration(c.AuxTimeoutSeconds) * time.Second
}
