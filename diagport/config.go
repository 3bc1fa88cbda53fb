package diagport

import "strings"

// PortType distinguishes the two port variants (spec §4.4, C6).
type PortType int

const (
	PortTypeConnect PortType = iota
	PortTypeListen
)

func (t PortType) String() string {
	if t == PortTypeListen {
		return "listen"
	}
	return "connect"
}

// SuspendMode controls whether runtime startup waits for a port's consumer
// to explicitly resume it (spec §4.3 defaults, §4.5 anySuspendedPorts).
type SuspendMode int

const (
	SuspendModeSuspend SuspendMode = iota
	SuspendModeNoSuspend
)

// PortSpec is one parsed port-config entry, prior to transport construction.
type PortSpec struct {
	Type    PortType
	Suspend SuspendMode
	Address string
}

// ParsePortConfigs parses the ports configuration string grammar from spec
// §6:
//
//	ports := port (';' port)*
//	port  := (tag ',')* address
//	tag   := 'listen' | 'connect' | 'suspend' | 'nosuspend'  (case-insensitive)
//
// Defaults are connect/suspend. Configs with an empty address (after
// trimming) are dropped and logged; unknown tags are ignored and logged.
// Entries are returned in source order — duplicate-priority resolution
// downstream (first-declared wins) falls naturally out of that order
// without a separate reverse pass.
func ParsePortConfigs(config string, log Logger) []PortSpec {
	if log == nil {
		log = NoOpLogger{}
	}
	var specs []PortSpec
	for _, raw := range strings.Split(config, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ",")
		address := strings.TrimSpace(parts[len(parts)-1])
		spec := PortSpec{Type: PortTypeConnect, Suspend: SuspendModeSuspend}
		for _, tag := range parts[:len(parts)-1] {
			tag = strings.TrimSpace(tag)
			switch strings.ToLower(tag) {
			case "listen":
				spec.Type = PortTypeListen
			case "connect":
				spec.Type = PortTypeConnect
			case "suspend":
				spec.Suspend = SuspendModeSuspend
			case "nosuspend":
				spec.Suspend = SuspendModeNoSuspend
			default:
				log.Warn("diagport: unknown port tag ignored", "tag", tag, "config", raw)
			}
		}
		if address == "" {
			log.Debug("diagport: dropping port config with empty address", "config", raw)
			continue
		}
		spec.Address = address
		specs = append(specs, spec)
	}
	return specs
}
