package persistence

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/world"
)

// Frame is the supplier of every tile inside a region on one day.
type Frame struct {
	Day       int                `json:"day"`
	Region    engine.DirtyRegion `json:"region"`
	PoweredBy []world.BuildingID `json:"powered_by"` // Row-major within Region
}

// CaptureFrame copies the PoweredBy layer of m inside r.
func CaptureFrame(m *world.Map, day int, r engine.DirtyRegion) Frame {
	f := Frame{Day: day, Region: r}
	if r.Empty() {
		return f
	}
	f.PoweredBy = make([]world.BuildingID, 0, frameLen(r))
	for row := r.MinRow; row <= r.MaxRow; row++ {
		for col := r.MinCol; col <= r.MaxCol; col++ {
			id := world.NoBuilding
			if t := m.At(row, col); t != nil {
				id = t.PoweredBy
			}
			f.PoweredBy = append(f.PoweredBy, id)
		}
	}
	return f
}

// FullRegion covers the whole map.
func FullRegion(m *world.Map) engine.DirtyRegion {
	return engine.DirtyRegion{MinRow: 0, MinCol: 0, MaxRow: m.Rows - 1, MaxCol: m.Cols - 1}
}

// At returns the supplier recorded for (row, col), NoBuilding outside the
// region.
func (f Frame) At(row, col int) world.BuildingID {
	if f.Region.Empty() || !f.Region.Contains(row, col) {
		return world.NoBuilding
	}
	width := f.Region.MaxCol - f.Region.MinCol + 1
	return f.PoweredBy[(row-f.Region.MinRow)*width+(col-f.Region.MinCol)]
}

func frameLen(r engine.DirtyRegion) int {
	if r.Empty() {
		return 0
	}
	return (r.MaxRow - r.MinRow + 1) * (r.MaxCol - r.MinCol + 1)
}

// Shared coders; EncodeAll and DecodeAll are safe for concurrent use.
var (
	frameEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	frameDecoder, _ = zstd.NewReader(nil)
)

// EncodeFrame packs the supplier ids as little-endian uint64 and compresses
// them with zstd.
func EncodeFrame(f Frame) ([]byte, error) {
	if len(f.PoweredBy) != frameLen(f.Region) {
		return nil, fmt.Errorf("frame has %d tiles, region holds %d", len(f.PoweredBy), frameLen(f.Region))
	}
	raw := make([]byte, 8*len(f.PoweredBy))
	for i, id := range f.PoweredBy {
		binary.LittleEndian.PutUint64(raw[i*8:], uint64(id))
	}
	return frameEncoder.EncodeAll(raw, nil), nil
}

// DecodeFrame reverses EncodeFrame for a frame stored against region.
func DecodeFrame(day int, region engine.DirtyRegion, data []byte) (Frame, error) {
	raw, err := frameDecoder.DecodeAll(data, nil)
	if err != nil {
		return Frame{}, fmt.Errorf("decompress frame: %w", err)
	}
	n := frameLen(region)
	if len(raw) != 8*n {
		return Frame{}, fmt.Errorf("frame holds %d bytes, region needs %d", len(raw), 8*n)
	}
	f := Frame{Day: day, Region: region}
	if n == 0 {
		return f, nil
	}
	f.PoweredBy = make([]world.BuildingID, n)
	for i := range f.PoweredBy {
		f.PoweredBy[i] = world.BuildingID(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return f, nil
}
