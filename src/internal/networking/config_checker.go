package networking

import (
	"github.com/maksimkurb/pbrsync/src/internal/config"
	"github.com/maksimkurb/pbrsync/src/internal/log"
)

// MissingInterfaces returns the interfaces bound by pbr_policy entries of
// namespace ns that are not present in interfaces. The kernel accepts rules
// for absent interfaces, so callers only warn about them.
func MissingInterfaces(c *config.Config, ns string, interfaces []Interface) []string {
	var missing []string
	for _, policy := range c.Policies {
		if policy.Namespace != ns {
			continue
		}
		if !interfaceExists(policy.Interface, interfaces) {
			log.Warnf("Interface '%s' for pbr_map '%s' does not exist in netns %q", policy.Interface, policy.PBRMap, ns)
			missing = append(missing, policy.Interface)
		}
	}
	return missing
}

func PrintMissingInterfacesHelp() {
	log.Warnf("(tip) Please enter command `pbrsync interfaces` to show available interfaces list")
}

func interfaceExists(interfaceName string, interfaces []Interface) bool {
	for _, iface := range interfaces {
		if iface.Attrs().Name == interfaceName {
			return true
		}
	}
	return false
}
