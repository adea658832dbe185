package config

import (
	"net/netip"

	"github.com/maksimkurb/pbrsync/src/internal/fibrule"
)

const (
	DefaultConfigPath       = "/opt/etc/pbrsync/pbrsync.conf"
	DefaultRulePriorityBase = 300
	MaxSeq                  = 1000
)

type Config struct {
	// General holds general configuration.
	General GeneralConfig `toml:"general" json:"general"`
	// Namespaces lists extra network namespaces (by name under /var/run/netns). The namespace pbrsync runs in is always managed.
	Namespaces []*NamespaceConfig `toml:"namespace,omitempty" json:"namespace,omitempty"`
	// PBRMaps are ordered sequences of match/set entries. Each entry becomes one kernel rule per bound interface.
	PBRMaps []*PBRMapConfig `toml:"pbr_map,omitempty" json:"pbr_map,omitempty"`
	// Policies bind a pbr map to an ingress interface.
	Policies []*PBRPolicyConfig `toml:"pbr_policy,omitempty" json:"pbr_policy,omitempty"`

	_absConfigFilePath string
}

type GeneralConfig struct {
	// APIBindAddress is the host:port of the read-only REST API (empty disables it).
	APIBindAddress string `toml:"api_bind_address" json:"api_bind_address" validate:"hostport_or_empty"`
	// RulePriorityBase is added to the sequence number to get the kernel rule priority (default: 300).
	RulePriorityBase uint32 `toml:"rule_priority_base" json:"rule_priority_base" validate:"max=4294966295"`
	// MaxMessageSize bounds one netlink request in bytes, header included (default: 8192).
	MaxMessageSize int `toml:"max_message_size" json:"max_message_size" validate:"min=64,max=65536"`
	// ReassertDeleted re-installs rules removed from the kernel by someone else (default: true).
	ReassertDeleted bool `toml:"reassert_deleted" json:"reassert_deleted"`
}

type NamespaceConfig struct {
	// Name is the network namespace name.
	Name string `toml:"name" json:"name" validate:"required,netns_name"`
}

type PBRMapConfig struct {
	// Name is the pbr map name.
	Name string `toml:"name" json:"name" validate:"required,map_name"`
	// Sequences are the map entries.
	Sequences []*SequenceConfig `toml:"seq" json:"seq" validate:"required,min=1"`
}

type SequenceConfig struct {
	// Seq orders the entry inside the map (1-1000).
	Seq uint32 `toml:"seq" json:"seq" validate:"required,min=1,max=1000"`
	// SrcIP matches the source prefix.
	SrcIP string `toml:"src_ip,omitempty" json:"src_ip,omitempty" validate:"omitempty,cidr"`
	// DstIP matches the destination prefix.
	DstIP string `toml:"dst_ip,omitempty" json:"dst_ip,omitempty" validate:"omitempty,cidr"`
	// Table is the routing table matching packets are looked up in.
	Table uint32 `toml:"table" json:"table" validate:"required,min=1"`
}

type PBRPolicyConfig struct {
	// Interface is the ingress interface name.
	Interface string `toml:"interface" json:"interface" validate:"required,max=15"`
	// Namespace is the network namespace of the interface (empty for the default one).
	Namespace string `toml:"namespace,omitempty" json:"namespace,omitempty"`
	// PBRMap is the name of the bound pbr map.
	PBRMap string `toml:"pbr_map" json:"pbr_map" validate:"required"`
}

func defaultConfig() Config {
	return Config{
		General: GeneralConfig{
			RulePriorityBase: DefaultRulePriorityBase,
			MaxMessageSize:   fibrule.DefaultMaxMessageSize,
			ReassertDeleted:  true,
		},
	}
}

// Prefixes parses the match prefixes. An empty string yields the zero prefix.
func (s *SequenceConfig) Prefixes() (src, dst netip.Prefix, err error) {
	if s.SrcIP != "" {
		if src, err = netip.ParsePrefix(s.SrcIP); err != nil {
			return
		}
		src = src.Masked()
	}
	if s.DstIP != "" {
		if dst, err = netip.ParsePrefix(s.DstIP); err != nil {
			return
		}
		dst = dst.Masked()
	}
	return
}

// NamespaceNames returns the default namespace followed by the configured ones.
func (c *Config) NamespaceNames() []string {
	names := []string{""}
	for _, ns := range c.Namespaces {
		names = append(names, ns.Name)
	}
	return names
}

// PBRMap returns the map called name, or nil.
func (c *Config) PBRMap(name string) *PBRMapConfig {
	for _, m := range c.PBRMaps {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func (c *Config) GetConfigPath() string {
	return c._absConfigFilePath
}
