// Package config handles configuration file parsing and validation for pbrsync.
//
// The TOML file defines general daemon settings, the network namespaces to
// manage, pbr maps (ordered match entries pointing at routing tables) and
// pbr policies binding a map to an ingress interface.
//
// # Example Usage
//
//	cfg, err := config.LoadConfig("/opt/etc/pbrsync/pbrsync.conf")
//	if err != nil {
//	    log.Fatalf("%v", err)
//	}
//	if err := cfg.ValidateConfig(); err != nil {
//	    log.Fatalf("%v", err)
//	}
//
// A minimal configuration:
//
//	[general]
//	api_bind_address = "127.0.0.1:12121"
//
//	[[pbr_map]]
//	name = "web"
//
//	  [[pbr_map.seq]]
//	  seq = 10
//	  src_ip = "10.0.0.0/24"
//	  table = 1000
//
//	[[pbr_policy]]
//	interface = "eth0"
//	pbr_map = "web"
//
// Validation collects every problem into ValidationErrors instead of
// stopping at the first one.
package config
