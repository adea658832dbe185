package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pbrerrors "github.com/maksimkurb/pbrsync/src/internal/errors"
	"github.com/maksimkurb/pbrsync/src/internal/fibrule"
)

func TestLoadConfig_NonExistentFile(t *testing.T) {
	_, err := LoadConfig("/non/existent/file.toml")
	if err == nil {
		t.Fatal("Expected error for non-existent file")
	}
	if !errors.Is(err, pbrerrors.Code(pbrerrors.ErrCodeConfig)) {
		t.Errorf("Expected CONFIG_ERROR, got %v", err)
	}
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "invalid.toml")

	invalidTOML := `[general
	api_bind_address = ""`

	err := os.WriteFile(configFile, []byte(invalidTOML), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	_, err = LoadConfig(configFile)
	if err == nil {
		t.Error("Expected error for invalid TOML")
	}
}

func TestLoadConfig_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "valid.toml")

	validTOML := `[general]
api_bind_address = "127.0.0.1:12121"

[[pbr_map]]
name = "web"

[[pbr_map.seq]]
seq = 10
src_ip = "10.0.0.0/24"
table = 1000

[[pbr_policy]]
interface = "eth0"
pbr_map = "web"`

	err := os.WriteFile(configFile, []byte(validTOML), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	config, err := LoadConfig(configFile)
	if err != nil {
		t.Fatalf("Expected no error for valid config: %v", err)
	}

	if config.General.APIBindAddress != "127.0.0.1:12121" {
		t.Errorf("Expected api_bind_address to be '127.0.0.1:12121', got %s", config.General.APIBindAddress)
	}
	if len(config.PBRMaps) != 1 || len(config.PBRMaps[0].Sequences) != 1 {
		t.Fatalf("Expected one pbr_map with one seq, got %+v", config.PBRMaps)
	}
	if config.PBRMaps[0].Sequences[0].Table != 1000 {
		t.Errorf("Expected table 1000, got %d", config.PBRMaps[0].Sequences[0].Table)
	}
	if config.GetConfigPath() != configFile {
		t.Errorf("Expected config path %s, got %s", configFile, config.GetConfigPath())
	}
	if err := config.ValidateConfig(); err != nil {
		t.Errorf("Expected config to be valid: %v", err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := ParseConfig([]byte(`[general]
api_bind_address = ""`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if config.General.RulePriorityBase != DefaultRulePriorityBase {
		t.Errorf("Expected rule_priority_base %d, got %d", DefaultRulePriorityBase, config.General.RulePriorityBase)
	}
	if config.General.MaxMessageSize != fibrule.DefaultMaxMessageSize {
		t.Errorf("Expected max_message_size %d, got %d", fibrule.DefaultMaxMessageSize, config.General.MaxMessageSize)
	}
	if !config.General.ReassertDeleted {
		t.Error("Expected reassert_deleted to default to true")
	}
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	config, err := ParseConfig([]byte(`[general]
rule_priority_base = 1000
reassert_deleted = false`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if config.General.RulePriorityBase != 1000 {
		t.Errorf("Expected rule_priority_base 1000, got %d", config.General.RulePriorityBase)
	}
	if config.General.ReassertDeleted {
		t.Error("Expected reassert_deleted to be false")
	}
	if config.General.MaxMessageSize != fibrule.DefaultMaxMessageSize {
		t.Errorf("Expected max_message_size default to survive, got %d", config.General.MaxMessageSize)
	}
}

func TestLoadConfig_RelativePath(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.toml")

	err := os.WriteFile(configFile, []byte("[general]\n"), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd)

	os.Chdir(tmpDir)

	_, err = LoadConfig("config.toml")
	if err != nil {
		t.Errorf("Expected no error for relative path: %v", err)
	}
}

func TestSerializeConfig(t *testing.T) {
	config := defaultConfig()
	config.PBRMaps = []*PBRMapConfig{{
		Name:      "web",
		Sequences: []*SequenceConfig{{Seq: 10, SrcIP: "10.0.0.0/24", Table: 1000}},
	}}

	buf, err := config.SerializeConfig()
	if err != nil {
		t.Fatalf("Failed to serialize config: %v", err)
	}

	content := buf.String()
	if !strings.Contains(content, "src_ip = '10.0.0.0/24'") {
		t.Errorf("Expected src_ip in serialized config, got:\n%s", content)
	}

	back, err := ParseConfig(buf.Bytes())
	if err != nil {
		t.Fatalf("Failed to parse serialized config: %v", err)
	}
	if back.PBRMaps[0].Sequences[0].Table != 1000 {
		t.Errorf("Expected table to survive serialization, got %d", back.PBRMaps[0].Sequences[0].Table)
	}
}

func TestSequencePrefixes(t *testing.T) {
	seq := &SequenceConfig{SrcIP: "10.0.0.7/24"}

	src, dst, err := seq.Prefixes()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if src.String() != "10.0.0.0/24" {
		t.Errorf("Expected masked prefix 10.0.0.0/24, got %s", src)
	}
	if dst.IsValid() {
		t.Errorf("Expected no destination prefix, got %s", dst)
	}

	if _, _, err := (&SequenceConfig{DstIP: "bogus"}).Prefixes(); err == nil {
		t.Error("Expected error for invalid prefix")
	}
}

func TestConfigHasher(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "pbrsync.conf")

	write := func(content string) {
		if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write test file: %v", err)
		}
	}
	write("[general]\nrule_priority_base = 300\n")

	hasher := NewConfigHasher(configFile)
	cfg, err := LoadConfig(configFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if err := hasher.SetActiveConfig(cfg); err != nil {
		t.Fatalf("Failed to set active config: %v", err)
	}

	outdated, err := hasher.IsOutdated()
	if err != nil || outdated {
		t.Errorf("Expected config to be up to date, got outdated=%v err=%v", outdated, err)
	}

	// Comments and layout do not change the hash.
	write("# comment\n[general]\n  rule_priority_base = 300\n")
	if outdated, _ := hasher.IsOutdated(); outdated {
		t.Error("Expected formatting-only change to keep the hash")
	}

	write("[general]\nrule_priority_base = 400\n")
	if outdated, _ := hasher.IsOutdated(); !outdated {
		t.Error("Expected changed config to be outdated")
	}
}

func TestExampleConfig(t *testing.T) {
	configFile := filepath.Join("../../../pbrsync.example.conf")

	config, err := LoadConfig(configFile)
	if err != nil {
		t.Fatalf("Expected no error for valid config: %v", err)
	}

	if err := config.ValidateConfig(); err != nil {
		t.Errorf("Expected example config to be valid: %v", err)
	}
}
