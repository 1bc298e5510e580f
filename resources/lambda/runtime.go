package lambda

// Family is the language a runtime executes.
type Family string

const (
	FamilyJava     Family = "java"
	FamilyPython   Family = "python"
	FamilyNode     Family = "nodejs"
	FamilyProvided Family = "provided"
)

// Runtime selects the execution environment of a function.
type Runtime struct {
	name   string
	family Family
}

// Supported managed runtimes.
var (
	RuntimeJava8        = Runtime{name: "java8.al2", family: FamilyJava}
	RuntimeJava11       = Runtime{name: "java11", family: FamilyJava}
	RuntimeJava17       = Runtime{name: "java17", family: FamilyJava}
	RuntimeJava21       = Runtime{name: "java21", family: FamilyJava}
	RuntimePython39     = Runtime{name: "python3.9", family: FamilyPython}
	RuntimePython310    = Runtime{name: "python3.10", family: FamilyPython}
	RuntimePython311    = Runtime{name: "python3.11", family: FamilyPython}
	RuntimePython312    = Runtime{name: "python3.12", family: FamilyPython}
	RuntimePython313    = Runtime{name: "python3.13", family: FamilyPython}
	RuntimeNodejs18     = Runtime{name: "nodejs18.x", family: FamilyNode}
	RuntimeNodejs20     = Runtime{name: "nodejs20.x", family: FamilyNode}
	RuntimeNodejs22     = Runtime{name: "nodejs22.x", family: FamilyNode}
	RuntimeProvidedAL2  = Runtime{name: "provided.al2", family: FamilyProvided}
	RuntimeProvidedAL23 = Runtime{name: "provided.al2023", family: FamilyProvided}
)

var knownRuntimes = []Runtime{
	RuntimeJava8, RuntimeJava11, RuntimeJava17, RuntimeJava21,
	RuntimePython39, RuntimePython310, RuntimePython311, RuntimePython312, RuntimePython313,
	RuntimeNodejs18, RuntimeNodejs20, RuntimeNodejs22,
	RuntimeProvidedAL2, RuntimeProvidedAL23,
}

// NewRuntime declares a runtime identifier that is not in the built-in list.
func NewRuntime(name string, family Family) Runtime {
	return Runtime{name: name, family: family}
}

// LookupRuntime finds a built-in runtime by identifier.
func LookupRuntime(name string) (Runtime, bool) {
	for _, r := range knownRuntimes {
		if r.name == name {
			return r, true
		}
	}
	return Runtime{}, false
}

// Name returns the provider identifier (e.g., "java11").
func (r Runtime) Name() string { return r.name }

// Family returns the language family.
func (r Runtime) Family() Family { return r.family }

// IsZero reports whether the runtime is unset.
func (r Runtime) IsZero() bool { return r.name == "" }

func (r Runtime) String() string { return r.name }
