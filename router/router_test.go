package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteAndBuild(t *testing.T) {
	r := New()
	require.NoError(t, r.Add("/users/{handle}"))
	require.NoError(t, r.Add("/users/{handle}/inbox"))
	require.NoError(t, r.Add("/users/{handle}/followers"))
	require.NoError(t, r.Add("/inbox"))

	m, ok := r.Route("/users/alice/inbox")
	require.True(t, ok)
	assert.Equal(t, "/users/{handle}/inbox", m.Template)
	assert.Equal(t, map[string]string{"handle": "alice"}, m.Vars)

	m, ok = r.Route("/inbox")
	require.True(t, ok)
	assert.Empty(t, m.Vars)

	_, ok = r.Route("/users/alice/outbox")
	assert.False(t, ok)

	path, err := r.Build("/users/{handle}/followers", map[string]string{"handle": "bob"})
	require.NoError(t, err)
	assert.Equal(t, "/users/bob/followers", path)
}

func TestBuildMissingVariable(t *testing.T) {
	r := New()
	require.NoError(t, r.Add("/objects/{id}"))

	_, err := r.Build("/objects/{id}", nil)
	assert.Error(t, err)

	_, err = r.Build("/unknown/{id}", map[string]string{"id": "x"})
	assert.Error(t, err)
}

func TestCollisionRejected(t *testing.T) {
	r := New()
	require.NoError(t, r.Add("/users/{handle}"))

	// Same shape, different variable name: still matches the same paths.
	assert.Error(t, r.Add("/users/{identifier}"))
	// Literal vs variable at the same position collides too.
	assert.Error(t, r.Add("/users/alice"))
	// Different length does not collide.
	assert.NoError(t, r.Add("/users/{handle}/liked"))
}

func TestPartialVariableRejected(t *testing.T) {
	r := New()
	assert.Error(t, r.Add("/users/@{handle}"))
	assert.Error(t, r.Add("no-leading-slash"))
}
