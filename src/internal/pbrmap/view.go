package pbrmap

import (
	"sort"

	"github.com/maksimkurb/pbrsync/src/internal/networking"
)

// RuleView is the display form of an entry.
type RuleView struct {
	Namespace string `json:"namespace"`
	Interface string `json:"interface"`
	Map       string `json:"pbr_map"`
	Seq       uint32 `json:"seq"`
	Priority  uint32 `json:"priority"`
	SrcIP     string `json:"src_ip,omitempty"`
	DstIP     string `json:"dst_ip,omitempty"`
	Table     uint32 `json:"table"`
	Desired   bool   `json:"desired"`
	Installed bool   `json:"installed"`
	Status    string `json:"status,omitempty"`
	Command   string `json:"command"`
}

type MapView struct {
	Name  string     `json:"name"`
	Rules []RuleView `json:"rules"`
}

type InterfaceView struct {
	Namespace string     `json:"namespace"`
	Interface string     `json:"interface"`
	Map       string     `json:"pbr_map"`
	Rules     []RuleView `json:"rules"`
}

func (e *Entry) View() RuleView {
	v := RuleView{
		Namespace: e.Namespace,
		Interface: e.Interface,
		Map:       e.Map,
		Seq:       e.Seq,
		Priority:  e.Rule.Priority,
		Table:     e.Rule.Action.Table,
		Desired:   e.Desired,
		Installed: e.Installed,
		Command:   networking.RuleCommand(e.Namespace, "add", e.Rule),
	}
	if e.Rule.Filter.HasSrc() {
		v.SrcIP = e.Rule.Filter.Src.String()
	}
	if e.Rule.Filter.HasDst() {
		v.DstIP = e.Rule.Filter.Dst.String()
	}
	if e.HasStatus {
		v.Status = e.Status.String()
	}
	return v
}

// Rules returns every tracked rule in display order.
func (m *Manager) Rules() []RuleView {
	snapshot := m.Snapshot()
	views := make([]RuleView, len(snapshot))
	for i := range snapshot {
		views[i] = snapshot[i].View()
	}
	return views
}

// Maps groups the tracked rules by pbr map, in name order.
func (m *Manager) Maps() []MapView {
	var views []MapView
	index := make(map[string]int)

	rules := m.Rules()
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Map < rules[j].Map })

	for _, r := range rules {
		i, ok := index[r.Map]
		if !ok {
			i = len(views)
			index[r.Map] = i
			views = append(views, MapView{Name: r.Map})
		}
		views[i].Rules = append(views[i].Rules, r)
	}
	return views
}

// Map returns the view of one pbr map.
func (m *Manager) Map(name string) (MapView, bool) {
	for _, v := range m.Maps() {
		if v.Name == name {
			return v, true
		}
	}
	return MapView{}, false
}

// Interfaces groups the tracked rules by namespace and interface.
func (m *Manager) Interfaces() []InterfaceView {
	var views []InterfaceView
	type ifaceKey struct{ ns, name string }
	index := make(map[ifaceKey]int)

	for _, r := range m.Rules() {
		k := ifaceKey{r.Namespace, r.Interface}
		i, ok := index[k]
		if !ok {
			i = len(views)
			index[k] = i
			views = append(views, InterfaceView{Namespace: r.Namespace, Interface: r.Interface, Map: r.Map})
		}
		views[i].Rules = append(views[i].Rules, r)
	}
	return views
}

// Interface returns the views of every interface called name, across namespaces.
func (m *Manager) Interface(name string) []InterfaceView {
	var out []InterfaceView
	for _, v := range m.Interfaces() {
		if v.Interface == name {
			out = append(out, v)
		}
	}
	return out
}
