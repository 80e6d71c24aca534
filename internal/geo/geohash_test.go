package geo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Deterministic(t *testing.T) {
	a := Encode(52.5200, 13.4050, StoredPrecision)
	b := Encode(52.5200, 13.4050, StoredPrecision)
	assert.Equal(t, a, b)
	assert.Len(t, a, StoredPrecision)
}

func TestEncode_PrecisionPrefix(t *testing.T) {
	long := Encode(48.8566, 2.3522, StoredPrecision)
	short := Encode(48.8566, 2.3522, CoverPrecision)
	assert.True(t, strings.HasPrefix(long, short))
}

func TestBoundingBox_Validate(t *testing.T) {
	ok := BoundingBox{MinLat: 10, MinLon: 10, MaxLat: 11, MaxLon: 11}
	require.NoError(t, ok.Validate())

	cases := []BoundingBox{
		{MinLat: -95, MinLon: 0, MaxLat: 0, MaxLon: 1},  // lat out of range
		{MinLat: 0, MinLon: -181, MaxLat: 1, MaxLon: 0}, // lon out of range
		{MinLat: 5, MinLon: 0, MaxLat: 4, MaxLon: 1},    // corners swapped
	}
	for _, c := range cases {
		assert.Error(t, c.Validate())
	}
}

func TestBoundingBoxPrefixes_CoversContainedPoint(t *testing.T) {
	box := BoundingBox{MinLat: 52.50, MinLon: 13.37, MaxLat: 52.55, MaxLon: 13.44}
	prefixes := BoundingBoxPrefixes(box)
	require.NotEmpty(t, prefixes)
	assert.LessOrEqual(t, len(prefixes), maxCoverPrefixes)

	// a point strictly inside the box must fall under one of the prefixes
	inside := Encode(52.52, 13.40, StoredPrecision)
	found := false
	for _, p := range prefixes {
		if strings.HasPrefix(inside, p) {
			found = true
			break
		}
	}
	assert.True(t, found, "contained point not covered by any prefix")
}

func TestBoundingBox_ExactContainmentCorrectsPrefix(t *testing.T) {
	box := BoundingBox{MinLat: 52.50, MinLon: 13.37, MaxLat: 52.55, MaxLon: 13.44}
	assert.True(t, box.Contains(52.52, 13.40))
	// shares cover cells with the box but lies outside of it
	assert.False(t, box.Contains(52.56, 13.40))
	assert.False(t, box.Contains(52.52, 13.45))
}
