package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracedPassesThroughResponses(t *testing.T) {
	mock := NewMock()
	mock.AddResponse("hi", "hello")

	traced := Traced(mock)
	req := Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}}

	bare, err1 := mock.Complete(context.Background(), req)
	wrapped, err2 := traced.Complete(context.Background(), req)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, bare, wrapped)
	assert.Equal(t, mock.Info(), traced.Info())
}

func TestTracedPassesThroughErrors(t *testing.T) {
	mock := NewMock()
	sentinel := errors.New("overloaded")
	mock.FailWith(sentinel)

	_, err := Traced(mock).Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	assert.Same(t, sentinel, err, "the wrapper must surface the identical error")
}

func TestTracedNilClient(t *testing.T) {
	assert.Nil(t, Traced(nil))
}
