package model

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestErrorKindThroughWrapping(t *testing.T) {
	t.Parallel()

	base := NewError(KindIO, "sink close", errors.New("disk full"))
	wrapped := eris.Wrap(base, "chunk: route")

	assert.True(t, IsKind(wrapped, KindIO))
	assert.False(t, IsKind(wrapped, KindInput))
	assert.Equal(t, KindIO, KindOf(wrapped))
	assert.Contains(t, base.Error(), "io: sink close: disk full")
}

func TestIsKindNested(t *testing.T) {
	t.Parallel()

	inner := NewError(KindExternal, "pdok", errors.New("timeout"))
	outer := NewError(KindInput, "load", inner)

	assert.True(t, IsKind(outer, KindInput))
	assert.True(t, IsKind(outer, KindExternal))
	assert.Equal(t, KindInput, KindOf(outer))
}

func TestNewErrorNil(t *testing.T) {
	t.Parallel()

	err := NewError(KindPartition, "", nil)
	assert.Equal(t, "partition: partition error", err.Error())
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.False(t, IsKind(nil, KindIO))
}

func TestParseAggregationMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    AggregationMode
		wantErr bool
	}{
		{"mean", ModeMean, false},
		{"median", ModeMedian, false},
		{"mode", ModeMode, false},
		{" MEAN ", ModeMean, false},
		{"max", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseAggregationMode(tt.in)
			if tt.wantErr {
				assert.True(t, IsKind(err, KindConfig))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
