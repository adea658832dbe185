package pbrmap

import (
	"sort"
	"time"

	"github.com/maksimkurb/pbrsync/src/internal/config"
	"github.com/maksimkurb/pbrsync/src/internal/log"
	"github.com/maksimkurb/pbrsync/src/internal/rule"
)

// Entry is one pbr map sequence bound to one interface, i.e. one kernel rule.
type Entry struct {
	Namespace string
	Interface string
	Map       string
	Seq       uint32
	Rule      rule.Rule

	// Desired is false once the entry is scheduled for removal.
	Desired   bool
	Installed bool
	// Status is the last reported outcome, valid when HasStatus is set.
	Status    rule.Status
	HasStatus bool
	Updated   time.Time
}

type entryKey struct {
	namespace string
	rule      rule.Rule
}

func (e *Entry) key() entryKey {
	return entryKey{namespace: e.Namespace, rule: e.Rule}
}

// BuildEntries expands the pbr policies of cfg into entries. cfg is expected
// to be validated; sequences with unparsable prefixes are skipped.
func BuildEntries(cfg *config.Config) []*Entry {
	var entries []*Entry

	for _, policy := range cfg.Policies {
		m := cfg.PBRMap(policy.PBRMap)
		if m == nil {
			log.Warnf("pbr_policy %s refers to unknown pbr_map %s", policy.Interface, policy.PBRMap)
			continue
		}

		for _, seq := range m.Sequences {
			src, dst, err := seq.Prefixes()
			if err != nil {
				log.Warnf("pbr_map %s seq %d: %v", m.Name, seq.Seq, err)
				continue
			}

			entries = append(entries, &Entry{
				Namespace: policy.Namespace,
				Interface: policy.Interface,
				Map:       m.Name,
				Seq:       seq.Seq,
				Rule: rule.Rule{
					Priority:  cfg.General.RulePriorityBase + seq.Seq,
					Interface: policy.Interface,
					Filter:    rule.Filter{Src: src, Dst: dst},
					Action:    rule.Action{Table: seq.Table},
				},
				Desired: true,
			})
		}
	}

	sortEntries(entries)
	return entries
}

func sortEntries(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.Interface != b.Interface {
			return a.Interface < b.Interface
		}
		if a.Map != b.Map {
			return a.Map < b.Map
		}
		return a.Seq < b.Seq
	})
}
