package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	accessor := FromContext()

	assert.Equal(t, Anonymous, accessor.CurrentIdentity(context.Background()))

	ctx := WithIdentity(context.Background(), " conn-1 ")
	assert.Equal(t, "conn-1", accessor.CurrentIdentity(ctx))

	// stable for the lifetime of the scope
	assert.Equal(t, accessor.CurrentIdentity(ctx), accessor.CurrentIdentity(ctx))
}

func TestFunc_EmptyIsAnonymous(t *testing.T) {
	var nilFunc Func
	assert.Equal(t, Anonymous, nilFunc.CurrentIdentity(context.Background()))

	f := Func(func(context.Context) string { return "   " })
	assert.Equal(t, Anonymous, f.CurrentIdentity(context.Background()))
}

func TestStatic(t *testing.T) {
	assert.Equal(t, "cli", Static("cli").CurrentIdentity(context.Background()))
	assert.Equal(t, Anonymous, Static("").CurrentIdentity(context.Background()))
}

func TestChain(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"first wins", WithIdentity(context.Background(), "ctx-id"), "ctx-id"},
		{"falls through", context.Background(), "fallback"},
	}

	chain := Chain(nil, FromContext(), Static("fallback"))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chain.CurrentIdentity(tt.ctx))
		})
	}

	assert.Equal(t, Anonymous, Chain().CurrentIdentity(context.Background()))
}

func TestIsAnonymous(t *testing.T) {
	assert.True(t, IsAnonymous(""))
	assert.True(t, IsAnonymous(Anonymous))
	assert.False(t, IsAnonymous("s1"))
}
