package ply

import (
	"bufio"
	"image/color"
	"io"
	"os"
	"strconv"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
)

// Write saves positions and their colors as an ASCII PLY point set. colors may be nil; otherwise
// it must match positions in length. Invalid input is rejected before the file is created.
func Write(path string, positions []r3.Vector, colors []color.NRGBA) error {
	return WriteDocument(path, &Document{Vertices: positions, Colors: colors})
}

// WriteDocument saves doc to path.
func WriteDocument(path string, doc *Document) (err error) {
	if err := doc.Validate(); err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return Encode(f, doc)
}

// Encode writes doc in ASCII PLY. Positions use six fractional digits. Triangles are written
// counter-clockwise, the reverse of the document's winding.
func Encode(w io.Writer, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	writeHeader(bw, doc)

	line := make([]byte, 0, 64)
	for i, v := range doc.Vertices {
		line = line[:0]
		line = strconv.AppendFloat(line, v.X, 'f', 6, 64)
		line = append(line, ' ')
		line = strconv.AppendFloat(line, v.Y, 'f', 6, 64)
		line = append(line, ' ')
		line = strconv.AppendFloat(line, v.Z, 'f', 6, 64)
		if doc.HasColors() {
			c := doc.Colors[i]
			for _, ch := range []uint8{c.R, c.G, c.B} {
				line = append(line, ' ')
				line = strconv.AppendUint(line, uint64(ch), 10)
			}
		}
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}

	for _, tri := range doc.Triangles {
		line = append(line[:0], '3')
		for _, idx := range []uint32{tri[0], tri[2], tri[1]} {
			line = append(line, ' ')
			line = strconv.AppendUint(line, uint64(idx), 10)
		}
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// writeHeader leaves write errors to the final Flush.
func writeHeader(bw *bufio.Writer, doc *Document) {
	bw.WriteString("ply\n")
	bw.WriteString("format ascii 1.0\n")
	bw.WriteString("comment scanfusion\n")
	bw.WriteString("element vertex " + strconv.Itoa(len(doc.Vertices)) + "\n")
	bw.WriteString("property float x\n")
	bw.WriteString("property float y\n")
	bw.WriteString("property float z\n")
	if doc.HasColors() {
		bw.WriteString("property uchar red\n")
		bw.WriteString("property uchar green\n")
		bw.WriteString("property uchar blue\n")
	}
	if len(doc.Triangles) > 0 {
		bw.WriteString("element face " + strconv.Itoa(len(doc.Triangles)) + "\n")
		bw.WriteString("property list uchar int vertex_indices\n")
	}
	bw.WriteString("end_header\n")
}
