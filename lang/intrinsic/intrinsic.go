// Package intrinsic defines the fixed, stable enumeration of built-in
// operations dispatched by the VM's CALLINTR opcode. An intrinsic is not a
// callable function value: it is selected at compile time by name and
// referenced from bytecode purely by its integer ID.
package intrinsic

// ID is a stable integer identifying one intrinsic operation.
type ID uint16

//nolint:revive
const (
	BitAnd ID = iota
	BitOr
	BitXor
	BitNot
	BitShl
	BitShr

	ArrayPush
	ArrayPop
	ArrayLen
	ArrayClear
	ArrayReserve
	ArrayGet
	ArraySet

	MapLen
	MapGet
	MapSet
	MapHas
	MapRemove
	MapClear
	MapIterBegin
	MapIterNext
	MapIterEnd

	StringLen
	StringSubstr
	StringCharAt
	StringFind
	StringContains
	StringStartsWith
	StringEndsWith
	StringToUpper
	StringToLower
	StringTrim
	StringReplace
	StringSplit
	StringJoin
	StringToInt
	StringToFloat
	StringFromCharCode
	StringConcat
	StringAppend
	StringInsert
	StringReverse

	count
)

// Invalid is the sentinel returned by FromString when a name is unknown.
const Invalid ID = 0xFFFF

var names = [...]string{
	BitAnd:             "bit_and",
	BitOr:              "bit_or",
	BitXor:             "bit_xor",
	BitNot:             "bit_not",
	BitShl:             "bit_shl",
	BitShr:             "bit_shr",
	ArrayPush:          "array_push",
	ArrayPop:           "array_pop",
	ArrayLen:           "array_len",
	ArrayClear:         "array_clear",
	ArrayReserve:       "array_reserve",
	ArrayGet:           "array_get",
	ArraySet:           "array_set",
	MapLen:             "map_len",
	MapGet:             "map_get",
	MapSet:             "map_set",
	MapHas:             "map_has",
	MapRemove:          "map_remove",
	MapClear:           "map_clear",
	MapIterBegin:       "map_iter_begin",
	MapIterNext:        "map_iter_next",
	MapIterEnd:         "map_iter_end",
	StringLen:          "string_len",
	StringSubstr:       "string_substr",
	StringCharAt:       "string_char_at",
	StringFind:         "string_find",
	StringContains:     "string_contains",
	StringStartsWith:   "string_starts_with",
	StringEndsWith:     "string_ends_with",
	StringToUpper:      "string_to_upper",
	StringToLower:      "string_to_lower",
	StringTrim:         "string_trim",
	StringReplace:      "string_replace",
	StringSplit:        "string_split",
	StringJoin:         "string_join",
	StringToInt:        "string_to_int",
	StringToFloat:      "string_to_float",
	StringFromCharCode: "string_from_char_code",
	StringConcat:       "string_concat",
	StringAppend:       "string_append",
	StringInsert:       "string_insert",
	StringReverse:      "string_reverse",
}

var byName = func() map[string]ID {
	m := make(map[string]ID, len(names))
	for id, n := range names {
		if n != "" {
			m[n] = ID(id)
		}
	}
	return m
}()

// FromString is the total function name -> ID: it returns (Invalid, false)
// for any name that is not a registered intrinsic.
func FromString(name string) (ID, bool) {
	id, ok := byName[name]
	if !ok {
		return Invalid, false
	}
	return id, true
}

// Name is the total function ID -> name.
func Name(id ID) string {
	if int(id) < len(names) && names[id] != "" {
		return names[id]
	}
	return "invalid"
}
