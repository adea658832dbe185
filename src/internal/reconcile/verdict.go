package reconcile

// Verdict is the outcome of classifying one kernel notification. Everything
// except Accepted is a silent drop.
type Verdict uint8

const (
	Accepted Verdict = iota
	NotRoutingRule
	AddNotYetSupported
	Malformed
	WrongFamily
	NotToTable
	NoInterfaceAttr
	UnknownInterface
)

var verdictNames = [...]string{
	Accepted:           "accepted",
	NotRoutingRule:     "not_routing_rule",
	AddNotYetSupported: "add_not_yet_supported",
	Malformed:          "malformed",
	WrongFamily:        "wrong_family",
	NotToTable:         "not_to_table",
	NoInterfaceAttr:    "no_interface_attr",
	UnknownInterface:   "unknown_interface",
}

func (v Verdict) String() string {
	if int(v) < len(verdictNames) {
		return verdictNames[v]
	}
	return "unknown"
}
