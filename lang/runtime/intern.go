package runtime

// StringInterner deduplicates the qualified names, field names, and literal
// strings referenced from bytecode so the VM can compare them by integer
// identity rather than by content.
type StringInterner struct {
	ids     map[string]uint32
	strings []string
}

// NewStringInterner returns an empty interner.
func NewStringInterner() *StringInterner {
	return &StringInterner{ids: make(map[string]uint32)}
}

// Intern returns the stable id for s, registering it on first use.
func (si *StringInterner) Intern(s string) uint32 {
	if id, ok := si.ids[s]; ok {
		return id
	}
	id := uint32(len(si.strings))
	si.strings = append(si.strings, s)
	si.ids[s] = id
	return id
}

// Lookup returns the string for an id produced by Intern.
func (si *StringInterner) Lookup(id uint32) string {
	return si.strings[id]
}

// TryIntern returns the id for s without registering it.
func (si *StringInterner) TryIntern(s string) (uint32, bool) {
	id, ok := si.ids[s]
	return id, ok
}
