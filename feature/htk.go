package feature

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
)

// HTK parameter kind qualifiers.
const (
	HTKEnergy     uint16 = 0x0040 // _E
	HTKDelta      uint16 = 0x0100 // _D
	HTKAccel      uint16 = 0x0200 // _A
	HTKCompressed uint16 = 0x0400 // _C
	HTKZeroMean   uint16 = 0x0800 // _Z
	HTKChecksum   uint16 = 0x1000 // _K
)

const htkBaseMask = 0x003f

var htkBaseNames = []string{
	"WAVEFORM", "LPC", "LPREFC", "LPCEPSTRA", "LPDELCEP", "IREFC",
	"MFCC", "FBANK", "MELSPEC", "USER", "DISCRETE", "PLP",
}

// HTK is the content of an HTK parameter file.
type HTK struct {
	Kind   uint16
	Period time.Duration
	Frames [][]float64
}

// Dim returns the vector dimension, 0 when there are no frames.
func (h *HTK) Dim() int {
	if len(h.Frames) == 0 {
		return 0
	}
	return len(h.Frames[0])
}

// KindName renders the parameter kind, e.g. "MFCC_E_D_Z".
func (h *HTK) KindName() string {
	base := int(h.Kind & htkBaseMask)
	name := "ANON"
	if base < len(htkBaseNames) {
		name = htkBaseNames[base]
	}
	for _, q := range []struct {
		bit uint16
		tag string
	}{{HTKEnergy, "_E"}, {HTKDelta, "_D"}, {HTKAccel, "_A"}, {HTKCompressed, "_C"}, {HTKZeroMean, "_Z"}, {HTKChecksum, "_K"}} {
		if h.Kind&q.bit != 0 {
			name += q.tag
		}
	}
	return name
}

type htkHeader struct {
	Samples    int32
	SampPeriod int32 // 100ns units
	SampSize   int16 // bytes per frame
	ParmKind   int16
}

// ReadHTK parses an uncompressed big-endian HTK parameter file.
func ReadHTK(r io.Reader) (*HTK, error) {
	var hdr htkHeader
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "htk header")
	}
	kind := uint16(hdr.ParmKind)
	if kind&HTKCompressed != 0 {
		return nil, errors.New("htk: compressed parameter files are not supported")
	}
	if hdr.Samples < 0 || hdr.SampSize <= 0 || hdr.SampSize%4 != 0 {
		return nil, errors.Errorf("htk: bad header %+v", hdr)
	}
	dim := int(hdr.SampSize) / 4
	h := &HTK{
		Kind:   kind,
		Period: time.Duration(hdr.SampPeriod) * 100 * time.Nanosecond,
		Frames: make([][]float64, hdr.Samples),
	}
	row := make([]float32, dim)
	buf := make([]float64, int(hdr.Samples)*dim)
	for t := range h.Frames {
		if err := binary.Read(r, binary.BigEndian, row); err != nil {
			return nil, errors.Wrapf(err, "htk frame %d", t)
		}
		h.Frames[t] = buf[t*dim : (t+1)*dim]
		for d, v := range row {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return nil, errors.Errorf("htk frame %d: non-finite value", t)
			}
			h.Frames[t][d] = float64(v)
		}
	}
	return h, nil
}

// WriteHTK writes frames as an uncompressed HTK parameter file.
func WriteHTK(w io.Writer, h *HTK) error {
	dim := h.Dim()
	hdr := htkHeader{
		Samples:    int32(len(h.Frames)),
		SampPeriod: int32(h.Period / (100 * time.Nanosecond)),
		SampSize:   int16(dim * 4),
		ParmKind:   int16(h.Kind &^ HTKCompressed),
	}
	if err := binary.Write(w, binary.BigEndian, &hdr); err != nil {
		return err
	}
	row := make([]float32, dim)
	for t, f := range h.Frames {
		if len(f) != dim {
			return errors.Errorf("htk frame %d: dimension %d, want %d", t, len(f), dim)
		}
		for d, v := range f {
			row[d] = float32(v)
		}
		if err := binary.Write(w, binary.BigEndian, row); err != nil {
			return err
		}
	}
	return nil
}

// LoadHTKFile is a convenience wrapper that opens a file path.
func LoadHTKFile(path string) (*HTK, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHTK(f)
}
