package messaging

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"
)

// GoogleClientConfig holds what is needed to construct the SDK clients the
// Google factories wrap. Construction itself stays with the caller.
type GoogleClientConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`

	MaxOutstandingMessages int `yaml:"max_outstanding_messages"`
	NumGoroutines          int `yaml:"num_goroutines"`
}

// LoadGoogleClientConfigFromEnv loads client configuration from environment
// variables.
func LoadGoogleClientConfigFromEnv() (*GoogleClientConfig, error) {
	cfg := &GoogleClientConfig{
		ProjectID:              os.Getenv("GCP_PROJECT_ID"),
		CredentialsFile:        os.Getenv("GCP_PUBSUB_CREDENTIALS_FILE"),
		MaxOutstandingMessages: 100,
		NumGoroutines:          5,
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("GCP_PROJECT_ID environment variable not set for Pub/Sub clients")
	}
	if mom := os.Getenv("PUBSUB_MAX_OUTSTANDING_MESSAGES"); mom != "" {
		if val, err := strconv.Atoi(mom); err == nil {
			cfg.MaxOutstandingMessages = val
		}
	}
	if ng := os.Getenv("PUBSUB_NUM_GOROUTINES"); ng != "" {
		if val, err := strconv.Atoi(ng); err == nil {
			cfg.NumGoroutines = val
		}
	}
	return cfg, nil
}

// LoadGoogleClientConfigFromFile loads client configuration from a YAML file.
func LoadGoogleClientConfigFromFile(path string) (*GoogleClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client config %s: %w", path, err)
	}
	cfg := &GoogleClientConfig{
		MaxOutstandingMessages: 100,
		NumGoroutines:          5,
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse client config %s: %w", path, err)
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("client config %s: project_id is required", path)
	}
	return cfg, nil
}

// ReceiveSettings projects the streaming-receive tuning out of the config.
func (c *GoogleClientConfig) ReceiveSettings() ReceiveSettings {
	return ReceiveSettings{
		MaxOutstandingMessages: c.MaxOutstandingMessages,
		NumGoroutines:          c.NumGoroutines,
	}
}

// ClientOptions returns the option set for constructing SDK clients against
// this config. When PUBSUB_EMULATOR_HOST is set the emulator endpoint wins
// over credentials.
func (c *GoogleClientConfig) ClientOptions(logger zerolog.Logger) []option.ClientOption {
	var opts []option.ClientOption
	if emulatorHost := os.Getenv("PUBSUB_EMULATOR_HOST"); emulatorHost != "" {
		logger.Info().Str("emulator_host", emulatorHost).Msg("Using Pub/Sub emulator.")
		opts = append(opts, option.WithEndpoint(emulatorHost), option.WithoutAuthentication())
	} else if c.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	return opts
}
