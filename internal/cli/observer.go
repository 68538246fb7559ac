package cli

import (
	"fmt"

	"github.com/calvinalkan/livequery/pkg/livequery"
)

// changePrinter reports controller changes as one line each:
//
//	section insert "B" at 1
//	object move Bob (key) 0/1 -> 1/0
type changePrinter struct {
	o      *IO
	cycles int
}

func (p *changePrinter) DidChangeSection(sec *livequery.Section[Contact], index int, t livequery.ChangeType) {
	p.o.Printf("section %s %q at %d\n", t, sec.Name(), index)
}

func (p *changePrinter) DidChangeObject(c Contact, oldPath *livequery.IndexPath, t livequery.ChangeType, newPath *livequery.IndexPath) {
	p.o.Printf("object %s %s (%s) %s\n", t, c.Name, c.Key, paths(oldPath, newPath))
}

func (p *changePrinter) DidChangeContent() {
	p.cycles++
}

func paths(oldPath, newPath *livequery.IndexPath) string {
	switch {
	case oldPath == nil:
		return "-> " + newPath.String()
	case newPath == nil:
		return oldPath.String() + " ->"
	default:
		return fmt.Sprintf("%s -> %s", oldPath, newPath)
	}
}
