package hfsm

import (
	"fmt"
	"strings"
)

// Diagram renders a Machine's state graph as a PlantUML state diagram, for
// humans inspecting a configured machine rather than for anything the
// dispatcher itself depends on. States and Transitions each carry a
// single callback of a given kind rather than a list of named ones, so
// there's no combining logic needed for label text — each label is
// either the transition's own name or a generic fallback.
type Diagram[E any] struct {
	m            *Machine[E]
	defaultArrow string
}

// NewDiagram creates a Diagram for m. Transitions are labeled with
// whatever name was given via WithName when the transition was added, so
// a usefully-labeled diagram depends on the caller having named its
// transitions.
func NewDiagram[E any](m *Machine[E]) *Diagram[E] {
	return &Diagram[E]{m: m, defaultArrow: "-->"}
}

// DefaultArrow overrides the arrow style used between states (default
// "-->"). See https://crashedmind.github.io/PlantUMLHitchhikersGuide/layout/layout.html.
func (d *Diagram[E]) DefaultArrow(arrow string) *Diagram[E] {
	d.defaultArrow = arrow
	return d
}

func (d *Diagram[E]) label(t *Transition[E]) string {
	if t.name != "" {
		return t.name
	}
	return "transition"
}

// Build renders the diagram as a PlantUML document string.
func (d *Diagram[E]) Build() string {
	if d.m.root == nil {
		return "@startuml\n@enduml\n"
	}

	var bld strings.Builder
	bld.WriteString("@startuml\n\n")

	var dump func(indent int, s *State[E])
	dump = func(indent int, s *State[E]) {
		prefix := strings.Repeat("  ", indent)
		fmt.Fprintf(&bld, "%sstate %q as %s\n", prefix, s.name, stateAlias(s))
		if !s.IsLeaf() {
			fmt.Fprintf(&bld, "%sstate %s {\n", prefix, stateAlias(s))
			for _, c := range s.children {
				dump(indent+1, c)
			}
			fmt.Fprintf(&bld, "%s}\n", prefix)
		}
		if s.entry != nil {
			fmt.Fprintf(&bld, "%s%s : entry\n", prefix, stateAlias(s))
		}
		if s.exit != nil {
			fmt.Fprintf(&bld, "%s%s : exit\n", prefix, stateAlias(s))
		}
		for _, t := range s.transitions {
			label := d.label(t)
			if t.guard != nil {
				label += " [guarded]"
			}
			if t.target == nil {
				fmt.Fprintf(&bld, "%s%s --> [*] : %s\n", prefix, stateAlias(s), label)
				continue
			}
			fmt.Fprintf(&bld, "%s%s %s %s : %s\n", prefix, stateAlias(s), d.defaultArrow, stateAlias(t.target), label)
		}
	}

	dump(0, d.m.root)
	if cur := d.m.cursor; cur != nil {
		fmt.Fprintf(&bld, "[*] --> %s\n", stateAlias(cur))
	}
	bld.WriteString("\n@enduml\n")
	return bld.String()
}

func stateAlias[E any](s *State[E]) string {
	return strings.ReplaceAll(s.name, " ", "_")
}
