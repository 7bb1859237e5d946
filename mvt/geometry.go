package mvt

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

type Op uint8

const (
	MoveTo    Op = 1
	LineTo    Op = 2
	ClosePath Op = 7
)

func (o Op) String() string {
	switch o {
	case MoveTo:
		return "MoveTo"
	case LineTo:
		return "LineTo"
	case ClosePath:
		return "ClosePath"
	default:
		return fmt.Sprintf("Op(%d)", o)
	}
}

// maxCount is the largest count a command integer can hold.
const maxCount = 1<<29 - 1

// Command is one drawing step. DX and DY are relative to the cursor; ClosePath has none.
type Command struct {
	Op Op
	DX int32
	DY int32
}

// Paths expands the commands into absolute coordinates. Every MoveTo starts a new path;
// a ClosePath repeats the first vertex of its path. The cursor starts at (0,0).
func (f *Feature) Paths() [][][2]int64 {
	var paths [][][2]int64
	var x, y int64
	for _, c := range f.Geometry {
		switch c.Op {
		case MoveTo:
			x += int64(c.DX)
			y += int64(c.DY)
			paths = append(paths, [][2]int64{{x, y}})
		case LineTo:
			x += int64(c.DX)
			y += int64(c.DY)
			if len(paths) > 0 {
				last := len(paths) - 1
				paths[last] = append(paths[last], [2]int64{x, y})
			}
		case ClosePath:
			if len(paths) > 0 {
				last := len(paths) - 1
				paths[last] = append(paths[last], paths[last][0])
			}
		}
	}
	return paths
}

// VertexCount is the number of MoveTo and LineTo steps.
func (f *Feature) VertexCount() int {
	n := 0
	for _, c := range f.Geometry {
		if c.Op != ClosePath {
			n++
		}
	}
	return n
}

func decodeGeometry(typ GeomType, data []uint32) ([]Command, error) {
	if len(data) == 0 {
		return nil, nil
	}
	cmds := make([]Command, 0, len(data)/2)
	for i := 0; i < len(data); {
		op := Op(data[i] & 0x7)
		count := int(data[i] >> 3)
		i++
		if count == 0 {
			return nil, fmt.Errorf("%w: %v with zero count", ErrGeometry, op)
		}
		if len(cmds) == 0 && op != MoveTo {
			return nil, fmt.Errorf("%w: starts with %v", ErrGeometry, op)
		}
		switch op {
		case MoveTo, LineTo:
			if typ == Point && op == LineTo {
				return nil, fmt.Errorf("%w: LineTo in point geometry", ErrGeometry)
			}
			if len(data)-i < 2*count {
				return nil, fmt.Errorf("%w: %v needs %d parameters, %d left", ErrGeometry, op, 2*count, len(data)-i)
			}
			for j := 0; j < count; j++ {
				cmds = append(cmds, Command{
					Op: op,
					DX: int32(protowire.DecodeZigZag(uint64(data[i]))),
					DY: int32(protowire.DecodeZigZag(uint64(data[i+1]))),
				})
				i += 2
			}
		case ClosePath:
			if typ == Point {
				return nil, fmt.Errorf("%w: ClosePath in point geometry", ErrGeometry)
			}
			if count != 1 {
				return nil, fmt.Errorf("%w: ClosePath with count %d", ErrGeometry, count)
			}
			cmds = append(cmds, Command{Op: ClosePath})
		default:
			return nil, fmt.Errorf("%w: unknown command %d", ErrGeometry, op)
		}
	}
	return cmds, nil
}

// encodeGeometry groups runs of the same operation under one command integer.
func encodeGeometry(cmds []Command) []uint32 {
	out := make([]uint32, 0, 2*len(cmds)+2)
	for i := 0; i < len(cmds); {
		op := cmds[i].Op
		if op == ClosePath {
			out = append(out, commandInteger(ClosePath, 1))
			i++
			continue
		}
		j := i
		for j < len(cmds) && cmds[j].Op == op && j-i < maxCount {
			j++
		}
		out = append(out, commandInteger(op, j-i))
		for _, c := range cmds[i:j] {
			out = append(out,
				uint32(protowire.EncodeZigZag(int64(c.DX))),
				uint32(protowire.EncodeZigZag(int64(c.DY))))
		}
		i = j
	}
	return out
}

func commandInteger(op Op, count int) uint32 {
	return uint32(op)&0x7 | uint32(count)<<3
}
