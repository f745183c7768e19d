package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// WebSocket holds the server listen address and the timing of the
// periodic loops that run on top of each connection.
type WebSocket struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	UpdateInterval time.Duration `yaml:"updateInterval"` // broadcast tick
	PingInterval   time.Duration `yaml:"pingInterval"`
	PongTimeout    time.Duration `yaml:"pongTimeout"` // silence before a connection is declared dead
	SendQueueSize  int           `yaml:"sendQueueSize"`
}

// Addr returns the host:port listen address.
func (w WebSocket) Addr() string {
	return net.JoinHostPort(w.Host, strconv.Itoa(w.Port))
}

// SpawnPoints controls spawn-list capping and the clear-radius
// availability test.
type SpawnPoints struct {
	MaxCount    int    `yaml:"maxCount"`
	ClearRadius int    `yaml:"clearRadius"` // Manhattan
	WaitMessage string `yaml:"waitMessage"`
}

// Movement holds server-side movement validation switches.
type Movement struct {
	AllowDiagonal bool `yaml:"allowDiagonal"`
}

// Reconnection is the client reconnect policy.
type Reconnection struct {
	Enabled            bool          `yaml:"enabled"`
	MaxAttempts        int           `yaml:"maxAttempts"`
	RetryDelay         time.Duration `yaml:"retryDelay"`
	ExponentialBackoff bool          `yaml:"exponentialBackoff"`
	MaxRetryDelay      time.Duration `yaml:"maxRetryDelay"`
}

// Prediction toggles client-side prediction and sets the reconciliation
// period.
type Prediction struct {
	Enabled                bool          `yaml:"enabled"`
	ReconciliationInterval time.Duration `yaml:"reconciliationInterval"`
}

// Interpolation holds the remote-entity playback constants.
type Interpolation struct {
	Delay            time.Duration `yaml:"delay"`
	Tick             time.Duration `yaml:"tick"`
	BufferMax        int           `yaml:"bufferMax"`
	ExtrapolationMax time.Duration `yaml:"extrapolationMax"`
}

// Config is the full configuration recognized by server and client. It is
// loaded once at startup and treated as immutable afterwards.
type Config struct {
	WebSocket     WebSocket     `yaml:"websocket"`
	SpawnPoints   SpawnPoints   `yaml:"spawnPoints"`
	Movement      Movement      `yaml:"movement"`
	Reconnection  Reconnection  `yaml:"reconnection"`
	Prediction    Prediction    `yaml:"prediction"`
	Interpolation Interpolation `yaml:"interpolation"`

	// Grace is how long a disconnected player keeps their position while a
	// reconnect may still rebind it. Zero removes the player immediately.
	Grace time.Duration `yaml:"grace"`
}

// Default returns a Config with every documented default filled in.
func Default() Config {
	return Config{
		WebSocket: WebSocket{
			Host:           "0.0.0.0",
			Port:           3001,
			UpdateInterval: 250 * time.Millisecond,
			PingInterval:   10 * time.Second,
			PongTimeout:    30 * time.Second,
			SendQueueSize:  64,
		},
		SpawnPoints: SpawnPoints{
			MaxCount:    25,
			ClearRadius: 3,
			WaitMessage: "The arena is full, waiting for a free spawn point...",
		},
		Movement: Movement{AllowDiagonal: true},
		Reconnection: Reconnection{
			Enabled:            true,
			MaxAttempts:        10,
			RetryDelay:         time.Second,
			ExponentialBackoff: true,
			MaxRetryDelay:      30 * time.Second,
		},
		Prediction: Prediction{
			Enabled:                true,
			ReconciliationInterval: 5 * time.Second,
		},
		Interpolation: Interpolation{
			Delay:            100 * time.Millisecond,
			Tick:             50 * time.Millisecond,
			BufferMax:        20,
			ExtrapolationMax: 300 * time.Millisecond,
		},
		Grace: 0,
	}
}

// Load reads a YAML config from path, layered over Default. A missing
// file is not an error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
