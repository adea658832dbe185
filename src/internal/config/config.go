package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	pbrerrors "github.com/maksimkurb/pbrsync/src/internal/errors"
	"github.com/maksimkurb/pbrsync/src/internal/log"
)

func LoadConfig(configPath string) (*Config, error) {
	configFile := filepath.Clean(configPath)

	if !filepath.IsAbs(configFile) {
		if path, err := filepath.Abs(configFile); err != nil {
			return nil, pbrerrors.NewConfigError("failed to get absolute path", err)
		} else {
			configFile = path
		}
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Errorf("Configuration file not found: %s", configFile)
		return nil, pbrerrors.NewConfigError(fmt.Sprintf("configuration file not found: %s", configFile), err)
	}

	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, pbrerrors.NewConfigError("failed to read config file", err)
	}

	config, err := ParseConfig(content)
	if err != nil {
		return nil, err
	}

	config._absConfigFilePath = configFile
	log.Debugf("Configuration file path: %s", configFile)

	return config, nil
}

// ParseConfig decodes TOML content on top of the defaults.
func ParseConfig(content []byte) (*Config, error) {
	config := defaultConfig()
	if err := toml.Unmarshal(content, &config); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			log.Errorf(derr.String())
			row, col := derr.Position()
			log.Errorf("Error at line %d, column %d", row, col)
			return nil, pbrerrors.NewConfigError(fmt.Sprintf("failed to parse config file at line %d, column %d", row, col), err)
		}
		return nil, pbrerrors.NewConfigError("failed to parse config file", err)
	}
	return &config, nil
}

func (c *Config) SerializeConfig() (*bytes.Buffer, error) {
	buf := bytes.Buffer{}
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return &buf, nil
}
