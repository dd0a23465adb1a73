package gc

// Handle is a stable, indirect reference to a heap-allocated Object. It
// never changes once returned by Arena, even across a Collect that frees
// and recycles other slots.
type Handle uint32

type entry struct {
	object Object
	marked bool
	free   bool
}

// Arena is a typed heap for Lox objects, managed with mark-and-sweep
// collection.
type Arena struct {
	entries  []entry
	freeList []Handle

	// strings interns string literals so that two equal literals share one
	// heap object, matching how the constants pool is expected to compare
	// strings by identity at the VM level.
	strings map[string]Handle
}

// NewArena creates an empty Arena.
func NewArena() *Arena {
	return &Arena{strings: make(map[string]Handle)}
}

func (a *Arena) alloc(obj Object) Handle {
	if len(a.freeList) > 0 {
		h := a.freeList[len(a.freeList)-1]
		a.freeList = a.freeList[:len(a.freeList)-1]
		a.entries[h] = entry{object: obj}
		return h
	}
	a.entries = append(a.entries, entry{object: obj})
	return Handle(len(a.entries) - 1)
}

// InternString returns a Handle to a StringObject holding s, reusing the
// existing handle if s was interned before.
func (a *Arena) InternString(s string) Handle {
	if h, ok := a.strings[s]; ok {
		return h
	}
	h := a.alloc(&StringObject{Chars: s})
	a.strings[s] = h
	return h
}

// NewFunction allocates a FunctionObject and returns its Handle.
func (a *Arena) NewFunction(name string, arity int, chunk any) Handle {
	return a.alloc(&FunctionObject{Name: name, Arity: arity, Chunk: chunk})
}

// Get dereferences a Handle to its Object.
func (a *Arena) Get(h Handle) Object {
	return a.entries[h].object
}

// String renders an Object for printing, e.g. by the "print" statement.
func (a *Arena) String(h Handle) string {
	switch obj := a.entries[h].object.(type) {
	case *StringObject:
		return obj.String()
	case *FunctionObject:
		return obj.String()
	default:
		return "<object>"
	}
}

func (a *Arena) mark(h Handle) {
	if a.entries[h].marked {
		return
	}
	a.entries[h].marked = true
}

// Collect performs a mark-and-sweep pass. roots enumerates every Handle
// currently reachable from the VM (stack slots, globals, active call
// frames' own function handle). Only the handles in roots are marked:
// marking does not follow references held inside an object, such as the
// strings and functions in a FunctionObject's chunk constants. Every
// object not in roots is freed and its slot queued for reuse.
func (a *Arena) Collect(roots []Handle) {
	for i := range a.entries {
		a.entries[i].marked = false
	}
	for _, h := range roots {
		a.mark(h)
	}
	for i := range a.entries {
		if a.entries[i].free || a.entries[i].marked {
			continue
		}
		if s, ok := a.entries[i].object.(*StringObject); ok {
			delete(a.strings, s.Chars)
		}
		a.entries[i].object = nil
		a.entries[i].free = true
		a.freeList = append(a.freeList, Handle(i))
	}
}

// Len reports how many live and free slots the arena currently holds,
// mostly useful for deciding when a collection is worth running.
func (a *Arena) Len() int {
	return len(a.entries)
}
