package optional_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/optional"
)

type patch struct {
	Name  optional.Value[string] `json:"name"`
	Count optional.Value[int]    `json:"count"`
	Note  optional.Value[string] `json:"note"`
}

func TestUnmarshalStates(t *testing.T) {
	var p patch
	require.NoError(t, json.Unmarshal([]byte(`{"name":"x","note":null}`), &p))

	assert.True(t, p.Name.Set)
	assert.False(t, p.Name.Null)
	assert.Equal(t, "x", p.Name.V)

	assert.False(t, p.Count.Set)

	assert.True(t, p.Note.Set)
	assert.True(t, p.Note.Null)

	assert.Error(t, json.Unmarshal([]byte(`{"count":"three"}`), &p))
}

func TestApply(t *testing.T) {
	dst := "before"
	assert.False(t, optional.Value[string]{}.Apply(&dst))
	assert.False(t, optional.Null[string]().Apply(&dst))
	assert.Equal(t, "before", dst)
	assert.True(t, optional.Some("after").Apply(&dst))
	assert.Equal(t, "after", dst)
}

func TestApplyPtr(t *testing.T) {
	v := "keep"
	dst := &v
	assert.False(t, optional.Value[string]{}.ApplyPtr(&dst))
	assert.Equal(t, "keep", *dst)

	assert.True(t, optional.Some("new").ApplyPtr(&dst))
	assert.Equal(t, "new", *dst)
	assert.Equal(t, "keep", v, "ApplyPtr stores a copy")

	assert.True(t, optional.Null[string]().ApplyPtr(&dst))
	assert.Nil(t, dst)
}

func TestPtr(t *testing.T) {
	assert.Nil(t, optional.Value[int]{}.Ptr())
	assert.Nil(t, optional.Null[int]().Ptr())
	assert.Equal(t, 3, *optional.Some(3).Ptr())
}
