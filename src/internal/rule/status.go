package rule

// Status is the outcome of a single install or uninstall attempt.
type Status int

const (
	InstallSuccess Status = iota
	InstallFailure
	DeleteSuccess
	DeleteFailure
)

func (s Status) String() string {
	switch s {
	case InstallSuccess:
		return "install_success"
	case InstallFailure:
		return "install_failure"
	case DeleteSuccess:
		return "delete_success"
	case DeleteFailure:
		return "delete_failure"
	default:
		return "unknown"
	}
}

// Succeeded reports whether the attempt was accepted by the kernel.
func (s Status) Succeeded() bool {
	return s == InstallSuccess || s == DeleteSuccess
}

// MarshalText lets Status appear by name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
