package metadata

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ifdEntry struct {
	Tag, Type uint16
	Count     uint32
	Value     uint32
}

// tiffWithExposure builds a little-endian TIFF header whose Exif IFD holds
// f/2.8, 1/250s, ISO 200 and a capture time.
func tiffWithExposure(t *testing.T) []byte {
	t.Helper()
	le := binary.LittleEndian
	var buf bytes.Buffer
	w := func(v any) { require.NoError(t, binary.Write(&buf, le, v)) }

	const (
		ifd0At   = 8
		exifAt   = ifd0At + 2 + 12 + 4
		dataAt   = exifAt + 2 + 4*12 + 4
		fnumAt   = dataAt
		expAt    = fnumAt + 8
		dateAt   = expAt + 8
		rational = 5
	)

	buf.WriteString("II")
	w(uint16(42))
	w(uint32(ifd0At))

	w(uint16(1))
	w(ifdEntry{Tag: 0x8769, Type: 4, Count: 1, Value: exifAt})
	w(uint32(0))

	w(uint16(4))
	w(ifdEntry{Tag: 0x829A, Type: rational, Count: 1, Value: expAt})
	w(ifdEntry{Tag: 0x829D, Type: rational, Count: 1, Value: fnumAt})
	w(ifdEntry{Tag: 0x8827, Type: 3, Count: 1, Value: 200})
	w(ifdEntry{Tag: 0x9003, Type: 2, Count: 20, Value: dateAt})
	w(uint32(0))

	require.Equal(t, dataAt, buf.Len())
	w([2]uint32{28, 10})
	w([2]uint32{1, 250})
	buf.WriteString("2019:03:14 10:00:00\x00")
	return buf.Bytes()
}

func TestReadExposure(t *testing.T) {
	exp, err := ReadExposure(bytes.NewReader(tiffWithExposure(t)))
	require.NoError(t, err)

	require.NotNil(t, exp.Aperture)
	assert.InDelta(t, 2.8, *exp.Aperture, 1e-9)
	require.NotNil(t, exp.ShutterSpeed)
	assert.InDelta(t, 0.004, *exp.ShutterSpeed, 1e-9)
	require.NotNil(t, exp.ISO)
	assert.Equal(t, 200, *exp.ISO)
	require.NotNil(t, exp.DateTaken)
	assert.Equal(t, time.Date(2019, 3, 14, 10, 0, 0, 0, time.UTC), *exp.DateTaken)
}

func TestReadExposureWithoutExif(t *testing.T) {
	exp, err := ReadExposure(strings.NewReader("definitely not a photo"))
	assert.ErrorIs(t, err, ErrNoExif)
	assert.True(t, exp.Empty())
}
