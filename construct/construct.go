// Package construct provides the scope handles resources are declared into.
//
// There is no ambient registry: every resource constructor receives the *Stack
// that owns it, and a stack only knows about resources explicitly added to it.
package construct

import (
	"errors"
	"fmt"
	"strings"

	stackwire "github.com/schedulegen/stackwire-go"
)

var (
	// ErrEmptyID is returned when a construct id is empty.
	ErrEmptyID = errors.New("construct id must not be empty")
	// ErrInvalidID is returned when a construct id contains a path separator.
	ErrInvalidID = errors.New("construct id must not contain '/'")
	// ErrDuplicateID is returned when two constructs share an id within one scope.
	ErrDuplicateID = errors.New("duplicate construct id")
)

// AppProps configures an App.
type AppProps struct {
	// Outdir is where synthesized templates and staged assets are written.
	Outdir string
}

// App is the root scope. It owns stacks.
type App struct {
	outdir string
	stacks []*Stack
	index  map[string]*Stack
}

// NewApp creates a root scope. props may be nil.
func NewApp(props *AppProps) *App {
	a := &App{
		outdir: "stackwire.out",
		index:  make(map[string]*Stack),
	}
	if props != nil && props.Outdir != "" {
		a.outdir = props.Outdir
	}
	return a
}

// Outdir returns the synthesis output directory.
func (a *App) Outdir() string {
	return a.outdir
}

// Stacks returns the stacks in declaration order.
func (a *App) Stacks() []*Stack {
	out := make([]*Stack, len(a.stacks))
	copy(out, a.stacks)
	return out
}

// Stack returns the stack with the given id.
func (a *App) Stack(id string) (*Stack, bool) {
	s, ok := a.index[id]
	return s, ok
}

// Environment pins a stack to an account and region. Empty fields are
// resolved by the deployment backend.
type Environment struct {
	Account string
	Region  string
}

// StackProps are the optional stack settings. They are passed through to
// synthesis and provisioning unprocessed.
type StackProps struct {
	Description string
	Env         Environment
	// AssetRoot anchors relative code asset paths. Declaration files set it to
	// their own directory (see asset.CallerDir) so resolution never depends on
	// the process working directory.
	AssetRoot string
	Tags      map[string]string
}

// Stack is the unit of atomic lifecycle: all resources in it are created,
// updated and destroyed together.
type Stack struct {
	app       *App
	id        string
	props     StackProps
	resources []stackwire.Resource
	index     map[string]stackwire.Resource
}

// NewStack declares a stack in app.
func NewStack(app *App, id string, props *StackProps) (*Stack, error) {
	if app == nil {
		return nil, errors.New("construct: stack requires an app scope")
	}
	if err := ValidateID(id); err != nil {
		return nil, fmt.Errorf("stack: %w", err)
	}
	if _, exists := app.index[id]; exists {
		return nil, fmt.Errorf("stack %q: %w", id, ErrDuplicateID)
	}

	s := &Stack{
		app:   app,
		id:    id,
		index: make(map[string]stackwire.Resource),
	}
	if props != nil {
		s.props = *props
	}

	app.stacks = append(app.stacks, s)
	app.index[id] = s
	return s, nil
}

// ID returns the stack id. It doubles as the deployed stack name.
func (s *Stack) ID() string {
	return s.id
}

// App returns the owning app.
func (s *Stack) App() *App {
	return s.app
}

// Props returns the stack props.
func (s *Stack) Props() StackProps {
	return s.props
}

// Path returns the construct path of a child id.
func (s *Stack) Path(parts ...string) string {
	return strings.Join(append([]string{s.id}, parts...), "/")
}

// Add registers a resource. Resource constructors call this; user code should not.
func (s *Stack) Add(r stackwire.Resource) error {
	if err := ValidateID(r.ID()); err != nil {
		return err
	}
	if _, exists := s.index[r.ID()]; exists {
		return fmt.Errorf("%s: %w", s.Path(r.ID()), ErrDuplicateID)
	}
	s.resources = append(s.resources, r)
	s.index[r.ID()] = r
	return nil
}

// Resources returns the registered resources in declaration order.
func (s *Stack) Resources() []stackwire.Resource {
	out := make([]stackwire.Resource, len(s.resources))
	copy(out, s.resources)
	return out
}

// Resource looks up a resource by id.
func (s *Stack) Resource(id string) (stackwire.Resource, bool) {
	r, ok := s.index[id]
	return r, ok
}

// ValidateID checks a construct id.
func ValidateID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if strings.Contains(id, "/") {
		return ErrInvalidID
	}
	return nil
}
