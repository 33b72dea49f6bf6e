package main

// Universe is the read-only set of loaded classes, keyed by dotted name and
// kept in load order.
type Universe struct {
	order   []string
	classes map[string]*ClassDescriptor
}

// NewUniverse builds a universe from descriptors. A repeated name keeps the
// first definition, the way a classpath shadows later entries.
func NewUniverse(classes ...*ClassDescriptor) *Universe {
	u := &Universe{
		classes: make(map[string]*ClassDescriptor, len(classes)),
	}
	for _, c := range classes {
		u.add(c)
	}
	return u
}

func (u *Universe) add(c *ClassDescriptor) bool {
	if c == nil || c.Name == "" {
		return false
	}
	if _, ok := u.classes[c.Name]; ok {
		return false
	}
	u.classes[c.Name] = c
	u.order = append(u.order, c.Name)
	return true
}

// Lookup returns the descriptor for name.
func (u *Universe) Lookup(name string) (*ClassDescriptor, bool) {
	if u == nil {
		return nil, false
	}
	c, ok := u.classes[name]
	return c, ok
}

// Names returns class names in load order.
func (u *Universe) Names() []string {
	if u == nil {
		return nil
	}
	out := make([]string, len(u.order))
	copy(out, u.order)
	return out
}

// Len returns the number of classes.
func (u *Universe) Len() int {
	if u == nil {
		return 0
	}
	return len(u.order)
}

// ancestors returns the direct superclass and interfaces of c.
func (c *ClassDescriptor) ancestors() []string {
	out := make([]string, 0, len(c.Interfaces)+1)
	if c.SuperClass != "" {
		out = append(out, c.SuperClass)
	}
	return append(out, c.Interfaces...)
}
