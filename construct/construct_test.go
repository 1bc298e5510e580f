package construct

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stackwire "github.com/schedulegen/stackwire-go"
)

type fakeResource struct {
	id string
}

func (f fakeResource) ID() string { return f.id }
func (f fakeResource) Kind() stackwire.Kind { return stackwire.KindStorage }
func (f fakeResource) ResourceType() string { return "AWS::S3::Bucket" }
func (f fakeResource) Dependencies() []string { return nil }

func TestNewApp_DefaultOutdir(t *testing.T) {
	assert.Equal(t, "stackwire.out", NewApp(nil).Outdir())
	assert.Equal(t, "out", NewApp(&AppProps{Outdir: "out"}).Outdir())
}

func TestNewStack(t *testing.T) {
	app := NewApp(nil)

	stack, err := NewStack(app, "GeneratorStack", &StackProps{
		Env: Environment{Account: "123456789012", Region: "ca-central-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "GeneratorStack", stack.ID())
	assert.Equal(t, "ca-central-1", stack.Props().Env.Region)
	assert.Same(t, app, stack.App())

	got, ok := app.Stack("GeneratorStack")
	require.True(t, ok)
	assert.Same(t, stack, got)
}

func TestNewStack_Errors(t *testing.T) {
	app := NewApp(nil)

	_, err := NewStack(nil, "S", nil)
	assert.Error(t, err)

	_, err = NewStack(app, "", nil)
	assert.ErrorIs(t, err, ErrEmptyID)

	_, err = NewStack(app, "a/b", nil)
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = NewStack(app, "S", nil)
	require.NoError(t, err)
	_, err = NewStack(app, "S", nil)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestStack_Add(t *testing.T) {
	stack, err := NewStack(NewApp(nil), "S", nil)
	require.NoError(t, err)

	require.NoError(t, stack.Add(fakeResource{id: "B"}))
	require.NoError(t, stack.Add(fakeResource{id: "A"}))

	err = stack.Add(fakeResource{id: "B"})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("Add duplicate error = %v, want ErrDuplicateID", err)
	}

	resources := stack.Resources()
	require.Len(t, resources, 2)
	assert.Equal(t, "B", resources[0].ID(), "declaration order is preserved")
	assert.Equal(t, "A", resources[1].ID())

	_, ok := stack.Resource("A")
	assert.True(t, ok)
	_, ok = stack.Resource("missing")
	assert.False(t, ok)
}

func TestStack_Path(t *testing.T) {
	stack, err := NewStack(NewApp(nil), "GeneratorStack", nil)
	require.NoError(t, err)
	assert.Equal(t, "GeneratorStack/GeneratorBucket/Resource", stack.Path("GeneratorBucket", "Resource"))
}

func TestStacksAreIsolated(t *testing.T) {
	app := NewApp(nil)
	s1, err := NewStack(app, "One", nil)
	require.NoError(t, err)
	s2, err := NewStack(app, "Two", nil)
	require.NoError(t, err)

	require.NoError(t, s1.Add(fakeResource{id: "Shared"}))
	require.NoError(t, s2.Add(fakeResource{id: "Shared"}))

	assert.Len(t, s1.Resources(), 1)
	assert.Len(t, s2.Resources(), 1)
	assert.Len(t, app.Stacks(), 2)
}
