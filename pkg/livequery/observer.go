package livequery

// Observer capabilities. An observer passed to [Controller.SetObserver] may
// implement any subset; the set is probed once at assignment.

// ContentWillChange is notified before the first change of a non-empty cycle.
type ContentWillChange interface {
	WillChangeContent()
}

// ObjectChangeObserver is notified once per object change.
//
// oldPath is nil for inserts and newPath is nil for deletes.
type ObjectChangeObserver[R Record] interface {
	DidChangeObject(obj R, oldPath *IndexPath, t ChangeType, newPath *IndexPath)
}

// SectionChangeObserver is notified once per section change. index is the old
// index for deletes and the new index for inserts.
type SectionChangeObserver[R Record] interface {
	DidChangeSection(section *Section[R], index int, t ChangeType)
}

// ChangeSetObserver receives the whole change set of a cycle at once, after
// the per-change callbacks.
type ChangeSetObserver[R Record] interface {
	DidChangeSectionsAndObjects(changes ChangeSet[R])
}

// ContentDidChange is notified after the last change of a non-empty cycle.
type ContentDidChange interface {
	DidChangeContent()
}

// IndexTitler overrides the index title derived for a section name.
type IndexTitler interface {
	SectionIndexTitle(sectionName string) string
}

// capabilities is the probed observer. Nil fields are absent callbacks.
type capabilities[R Record] struct {
	willChange ContentWillChange
	object     ObjectChangeObserver[R]
	section    SectionChangeObserver[R]
	changeSet  ChangeSetObserver[R]
	didChange  ContentDidChange
	titler     IndexTitler
}

func probe[R Record](o any) capabilities[R] {
	var c capabilities[R]

	if o == nil {
		return c
	}

	c.willChange, _ = o.(ContentWillChange)
	c.object, _ = o.(ObjectChangeObserver[R])
	c.section, _ = o.(SectionChangeObserver[R])
	c.changeSet, _ = o.(ChangeSetObserver[R])
	c.didChange, _ = o.(ContentDidChange)
	c.titler, _ = o.(IndexTitler)

	return c
}

// notifies reports whether any change callback is present.
func (c capabilities[R]) notifies() bool {
	return c.willChange != nil || c.object != nil || c.section != nil ||
		c.changeSet != nil || c.didChange != nil
}

// deliver forwards a cycle's changes: begin, sections, objects, the batch,
// end. Empty change sets are not delivered.
func (c capabilities[R]) deliver(cs ChangeSet[R]) {
	if cs.Empty() || !c.notifies() {
		return
	}

	if c.willChange != nil {
		c.willChange.WillChangeContent()
	}

	if c.section != nil {
		for _, sc := range cs.Sections {
			c.section.DidChangeSection(sc.Section, sc.Index, sc.Type)
		}
	}

	if c.object != nil {
		for _, oc := range cs.Objects {
			c.object.DidChangeObject(oc.Object, oc.OldPath, oc.Type, oc.NewPath)
		}
	}

	if c.changeSet != nil {
		c.changeSet.DidChangeSectionsAndObjects(cs)
	}

	if c.didChange != nil {
		c.didChange.DidChangeContent()
	}
}
