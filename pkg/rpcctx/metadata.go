package rpcctx

// Metadata is an ordered multi-map of ASCII keys to byte-string values.
// Client metadata is read-only once a call starts; trailing metadata is
// append-only. A plain map[string][]string cannot preserve
// insertion order across duplicate keys, so Metadata is a slice of pairs.
type Metadata struct {
	pairs []kv
}

type kv struct {
	key, value string
}

// Add appends one (key, value) pair, preserving any existing pairs for
// the same key.
func (m *Metadata) Add(key, value string) {
	m.pairs = append(m.pairs, kv{key, value})
}

// Get returns the first value associated with key, and whether it was
// present at all.
func (m *Metadata) Get(key string) (string, bool) {
	for _, p := range m.pairs {
		if p.key == key {
			return p.value, true
		}
	}
	return "", false
}

// Values returns every value associated with key, in insertion order.
func (m *Metadata) Values(key string) []string {
	var out []string
	for _, p := range m.pairs {
		if p.key == key {
			out = append(out, p.value)
		}
	}
	return out
}

// All returns every (key, value) pair in insertion order. The returned
// slice must not be mutated by callers of a read-only Metadata.
func (m *Metadata) All() []struct{ Key, Value string } {
	out := make([]struct{ Key, Value string }, len(m.pairs))
	for i, p := range m.pairs {
		out[i] = struct{ Key, Value string }{p.key, p.value}
	}
	return out
}

func (m *Metadata) Len() int { return len(m.pairs) }
