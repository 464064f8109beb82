package intern

import (
	"strconv"
	"sync"

	"tlog.app/go/tlog/tlwire"
)

type (
	// Ident is an interned name. Idents from the same Table compare equal
	// iff their names are equal. Zero is the empty name.
	Ident int32

	Table struct {
		mu sync.RWMutex

		ids   map[string]Ident
		names []string
	}

	// Scope issues fresh names for one function.
	// Only names interned before the scope was created count as taken,
	// so scopes created together issue the same names
	// whatever order they are used in.
	Scope struct {
		t     *Table
		limit Ident
		next  map[string]int
	}
)

const None Ident = 0

func New() *Table {
	return &Table{
		ids:   map[string]Ident{"": None},
		names: []string{""},
	}
}

func (t *Table) Intern(name string) Ident {
	t.mu.RLock()
	id, ok := t.ids[name]
	t.mu.RUnlock()

	if ok {
		return id
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.intern(name)
}

func (t *Table) InternAll(names ...string) []Ident {
	l := make([]Ident, len(names))

	for i, n := range names {
		l[i] = t.Intern(n)
	}

	return l
}

func (t *Table) Lookup(name string) (Ident, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id, ok := t.ids[name]

	return id, ok
}

// Name returns the text of id. It panics on an id the table never issued.
func (t *Table) Name(id Ident) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.names[id]
}

func (t *Table) Scope() *Scope {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Scope{
		t:     t,
		limit: Ident(len(t.names)),
		next:  map[string]int{},
	}
}

// Fresh returns prefix.N with the smallest N not used by this scope
// and not taken before the scope was created.
// Scope is not safe for concurrent use, the Table it belongs to is.
func (s *Scope) Fresh(prefix string) Ident {
	for {
		n := s.next[prefix]
		s.next[prefix] = n + 1

		name := prefix + "." + strconv.Itoa(n)

		if id, ok := s.t.Lookup(name); ok && id < s.limit {
			continue
		}

		return s.t.Intern(name)
	}
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.names)
}

func (t *Table) intern(name string) Ident {
	if id, ok := t.ids[name]; ok {
		return id
	}

	id := Ident(len(t.names))

	t.ids[name] = id
	t.names = append(t.names, name)

	return id
}

func (id Ident) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if id == None {
		return e.AppendNil(b)
	}

	return e.AppendInt(b, int(id))
}
