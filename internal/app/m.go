package app

// M is a map[string]any with some extra methods. It carries template data
// and decoded JSON bodies.
type M map[string]any

// Has returns true if m has a value for key.
func (m M) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// GetString returns the value of key as a string, or "".
func (m M) GetString(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// GetBool returns the value of key as a bool, or false.
func (m M) GetBool(key string) bool {
	v, _ := m[key].(bool)
	return v
}

// GetM returns the value of key as a nested M, or nil.
func (m M) GetM(key string) M {
	v, _ := m[key].(map[string]any)
	return v
}
