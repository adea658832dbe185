package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	config := defaultConfig()
	config.Namespaces = []*NamespaceConfig{{Name: "vpn"}}
	config.PBRMaps = []*PBRMapConfig{
		{
			Name: "web",
			Sequences: []*SequenceConfig{
				{Seq: 10, SrcIP: "10.0.0.0/24", Table: 1000},
				{Seq: 20, SrcIP: "10.0.1.0/24", DstIP: "192.168.0.0/16", Table: 100},
			},
		},
	}
	config.Policies = []*PBRPolicyConfig{
		{Interface: "eth0", PBRMap: "web"},
		{Interface: "wg0", Namespace: "vpn", PBRMap: "web"},
	}
	return &config
}

// expectError asserts that err is ValidationErrors containing a message with substr.
func expectError(t *testing.T, err error, substr string) {
	t.Helper()

	if err == nil {
		t.Fatalf("Expected validation error containing %q, got nil", substr)
	}

	var ve ValidationErrors
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationErrors, got %T: %v", err, err)
	}

	for _, e := range ve {
		if strings.Contains(e.FieldPath+": "+e.Message, substr) {
			return
		}
	}
	t.Errorf("Expected validation error containing %q, got: %v", substr, err)
}

func TestValidateConfig_Success(t *testing.T) {
	if err := validConfig().ValidateConfig(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestValidateConfig_NoMaps(t *testing.T) {
	config := validConfig()
	config.PBRMaps = nil
	config.Policies = nil

	expectError(t, config.ValidateConfig(), "at least one pbr_map")
}

func TestValidateGeneral(t *testing.T) {
	tests := []struct {
		name   string
		modify func(g *GeneralConfig)
		want   string
	}{
		{"bad api address", func(g *GeneralConfig) { g.APIBindAddress = "localhost" }, "general.api_bind_address"},
		{"tiny message size", func(g *GeneralConfig) { g.MaxMessageSize = 16 }, "general.max_message_size: must be >= 64"},
		{"huge message size", func(g *GeneralConfig) { g.MaxMessageSize = 1 << 20 }, "general.max_message_size: must be <= 65536"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.modify(&config.General)
			expectError(t, config.ValidateConfig(), tt.want)
		})
	}
}

func TestValidateSequences(t *testing.T) {
	tests := []struct {
		name string
		seq  *SequenceConfig
		want string
	}{
		{"zero seq", &SequenceConfig{SrcIP: "10.0.0.0/24", Table: 1}, "seq.2.seq: field is required"},
		{"seq too large", &SequenceConfig{Seq: 1001, SrcIP: "10.0.0.0/24", Table: 1}, "seq.2.seq: must be <= 1000"},
		{"zero table", &SequenceConfig{Seq: 30, SrcIP: "10.0.0.0/24"}, "seq.2.table: field is required"},
		{"bad prefix", &SequenceConfig{Seq: 30, SrcIP: "10.0.0.300/24", Table: 1}, "seq.2.src_ip: must be a prefix"},
		{"no match", &SequenceConfig{Seq: 30, Table: 1}, "must specify src_ip, dst_ip or both"},
		{"mixed family", &SequenceConfig{Seq: 30, SrcIP: "10.0.0.0/24", DstIP: "2001:db8::/32", Table: 1}, "different address families"},
		{"duplicate seq", &SequenceConfig{Seq: 10, DstIP: "10.9.0.0/16", Table: 1}, "duplicate sequence number: 10"},
		{"zero-length src", &SequenceConfig{Seq: 30, SrcIP: "0.0.0.0/0", Table: 100}, "zero-length prefix"},
		{"zero-length dst", &SequenceConfig{Seq: 30, SrcIP: "2001:db8::/32", DstIP: "::/0", Table: 100}, "zero-length prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			config.PBRMaps[0].Sequences = append(config.PBRMaps[0].Sequences, tt.seq)
			expectError(t, config.ValidateConfig(), tt.want)
		})
	}
}

func TestValidatePriorityBase(t *testing.T) {
	config := validConfig()
	config.General.RulePriorityBase = 4294967295 - MaxSeq
	if err := config.ValidateConfig(); err != nil {
		t.Errorf("Expected highest base to be valid, got: %v", err)
	}

	config.General.RulePriorityBase++
	expectError(t, config.ValidateConfig(), "general.rule_priority_base: must be <= 4294966295")
}

func TestValidatePBRMaps(t *testing.T) {
	config := validConfig()
	config.PBRMaps = append(config.PBRMaps,
		&PBRMapConfig{Name: "web", Sequences: []*SequenceConfig{{Seq: 1, SrcIP: "10.0.0.0/8", Table: 5}}},
		&PBRMapConfig{Name: "-bad", Sequences: []*SequenceConfig{{Seq: 1, SrcIP: "10.0.0.0/8", Table: 5}}},
		&PBRMapConfig{Name: "empty"},
	)

	err := config.ValidateConfig()
	expectError(t, err, "duplicate pbr_map name: web")
	expectError(t, err, "pbr_map.2.name: must start with a letter or digit")
	expectError(t, err, "pbr_map.3.seq: field is required")
}

func TestValidatePolicies(t *testing.T) {
	tests := []struct {
		name   string
		policy *PBRPolicyConfig
		want   string
	}{
		{"unknown map", &PBRPolicyConfig{Interface: "eth1", PBRMap: "nope"}, "unknown pbr_map: nope"},
		{"unknown namespace", &PBRPolicyConfig{Interface: "eth1", Namespace: "red", PBRMap: "web"}, "unknown namespace: red"},
		{"duplicate binding", &PBRPolicyConfig{Interface: "eth0", PBRMap: "web"}, "already bound"},
		{"missing interface", &PBRPolicyConfig{PBRMap: "web"}, "interface: field is required"},
		{"long interface", &PBRPolicyConfig{Interface: "a-very-long-ifname", PBRMap: "web"}, "interface: must be <= 15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			config.Policies = append(config.Policies, tt.policy)
			expectError(t, config.ValidateConfig(), tt.want)
		})
	}
}

func TestValidatePolicies_SameInterfaceInOtherNamespace(t *testing.T) {
	config := validConfig()
	config.Policies = append(config.Policies, &PBRPolicyConfig{Interface: "eth0", Namespace: "vpn", PBRMap: "web"})

	if err := config.ValidateConfig(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestValidateNamespaces(t *testing.T) {
	config := validConfig()
	config.Namespaces = append(config.Namespaces, &NamespaceConfig{Name: "vpn"}, &NamespaceConfig{Name: "bad/name"})

	err := config.ValidateConfig()
	expectError(t, err, "duplicate namespace: vpn")
	expectError(t, err, "namespace.2.name: must contain only")
}

func TestValidationErrors_Error(t *testing.T) {
	ve := ValidationErrors{
		{ItemName: "web", FieldPath: "seq.0.table", Message: "field is required"},
		{FieldPath: "pbr_map", Message: "configuration must contain at least one pbr_map"},
	}

	msg := ve.Error()
	if !strings.Contains(msg, "2 error(s)") {
		t.Errorf("Expected error count in message, got: %s", msg)
	}
	if !strings.Contains(msg, "[web] seq.0.table: field is required") {
		t.Errorf("Expected item name in message, got: %s", msg)
	}
	if (ValidationErrors{}).Error() != "no validation errors" {
		t.Error("Expected empty message for no errors")
	}
}
