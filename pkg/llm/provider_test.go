package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stream(chunks ...*StreamChunk) <-chan *StreamChunk {
	ch := make(chan *StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func TestCollect(t *testing.T) {
	got, err := Collect(stream(
		&StreamChunk{Role: "assistant"},
		&StreamChunk{Content: "foo"},
		&StreamChunk{Content: "bar"},
		&StreamChunk{Finished: true},
	))
	require.NoError(t, err)
	assert.Equal(t, "foobar", got)
}

func TestCollect_Error(t *testing.T) {
	boom := errors.New("boom")
	_, err := Collect(stream(
		&StreamChunk{Content: "foo"},
		&StreamChunk{Error: boom},
		&StreamChunk{Content: "ignored"},
	))
	assert.ErrorIs(t, err, boom)
}

func TestAPIError(t *testing.T) {
	err := &APIError{Provider: "openai", StatusCode: 500, Body: "oops"}
	assert.Equal(t, "openai API request failed with status 500: oops", err.Error())
}
