package config

import "time"

// Config is the runtime configuration, loaded from a JSON file. Every
// tuning knob of the coalescing pipeline lives here so deployments can
// adjust window and merge behavior without code changes.
type Config struct {
	Host           string         `json:"host"`
	Port           int            `json:"port"`
	LogLevel       string         `json:"logLevel"`
	DefaultSheet   string         `json:"defaultSheet"`
	ParseCacheSize int            `json:"parseCacheSize"`
	Upstream       UpstreamConfig `json:"upstream"`
	Window         WindowConfig   `json:"window"`
	Merge          MergeConfig    `json:"merge"`
}

// UpstreamConfig selects and tunes the sheet backend client.
type UpstreamConfig struct {
	BaseURL        string `json:"baseUrl"`
	WSURL          string `json:"wsUrl"`
	PreferWS       bool   `json:"preferWs"`
	RequestTimeout int    `json:"requestTimeout"` // ms - deadline for one merged upstream call
}

// WindowConfig tunes the batching window.
type WindowConfig struct {
	MaxWait     int `json:"maxWait"` // ms - how long a window stays open
	MaxRequests int `json:"maxRequests"`
}

// MergeConfig tunes the merge engine's cost guard.
type MergeConfig struct {
	WasteFactor float64 `json:"wasteFactor"`
	Adjacency   int     `json:"adjacency"` // cells of gap still considered adjacent
}

// Default values
const (
	DefaultHost           = "localhost"
	DefaultPort           = 8090
	DefaultLogLevel       = "info"
	DefaultParseCacheSize = 2048
	DefaultRequestTimeout = 5000 // ms
	DefaultWindowMaxWait  = 50   // ms
	DefaultWindowMaxReqs  = 32
	DefaultWasteFactor    = 2.0
	DefaultAdjacency      = 0
)

// GetRequestTimeoutDuration returns the upstream call deadline as time.Duration.
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.Upstream.RequestTimeout) * time.Millisecond
}

// GetWindowMaxWaitDuration returns the window duration as time.Duration.
func (c *Config) GetWindowMaxWaitDuration() time.Duration {
	return time.Duration(c.Window.MaxWait) * time.Millisecond
}
