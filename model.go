package main

// ClassDescriptor is the structural view of one compiled class.
type ClassDescriptor struct {
	Name        string // dotted, fully-qualified
	SuperClass  string // empty for java.lang.Object
	Interfaces  []string
	IsInterface bool
	Methods     []MethodDescriptor
}

// MethodDescriptor is a declared method and the call sites in its body.
type MethodDescriptor struct {
	Name       string
	Descriptor string // JVM descriptor, e.g. (I)Ljava/lang/String;
	Calls      []CallSite
}

// Signature returns name+descriptor, unique within the declaring class.
func (m MethodDescriptor) Signature() string {
	return m.Name + m.Descriptor
}

// CallSite is one invocation instruction. CalleeClass is empty when the
// target cannot be resolved statically (invokedynamic, array receivers).
type CallSite struct {
	CalleeClass  string
	CalleeMethod string // name+descriptor
}

// Resolved reports whether the callee class is statically known.
func (c CallSite) Resolved() bool {
	return c.CalleeClass != ""
}

// CoupledClass is one entry of a call-based coupling record.
type CoupledClass struct {
	Class string `yaml:"class"`
	Calls int    `yaml:"calls"` // distinct caller-method/callee-method edges
}

// CallCouplingRecord lists the classes one in-scope class is coupled to by
// method calls, in first-observed order.
type CallCouplingRecord struct {
	Class   string         `yaml:"class"`
	Coupled []CoupledClass `yaml:"coupled"`
}

// CoupledNames returns the coupled class names in order.
func (r CallCouplingRecord) CoupledNames() []string {
	names := make([]string, len(r.Coupled))
	for i, c := range r.Coupled {
		names[i] = c.Class
	}
	return names
}

// HierarchyCouplingRecord lists the other members of a class's hierarchy tree.
type HierarchyCouplingRecord struct {
	Class   string   `yaml:"class"`
	Coupled []string `yaml:"coupled"`
}

// CallEdge is a resolved class-level call between two in-scope classes.
type CallEdge struct {
	Caller       string
	Callee       string
	CallerMethod string
	CalleeMethod string
}

// CouplingAnalyzer is implemented by both analyzers so the pipeline can run
// them side by side.
type CouplingAnalyzer interface {
	Execute()
	ExecuteTarget(target string)
}
