package ply

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// vertex properties the reader understands. Any other property is skipped.
var vertexProperties = []string{"x", "y", "z", "red", "green", "blue"}

const (
	// largest preallocation trusted from a header count.
	maxPrealloc = 1 << 20
	// longest accepted line, in bytes.
	maxLineLength = 16 * 1024 * 1024
)

type element struct {
	name  string
	count int
}

// header is the result of the header pass. columns maps a vertex property name to its position
// within a vertex data line. A property declared twice maps to its last column.
type header struct {
	ascii        bool
	elements     []element
	vertexCount  int
	vertexFields int
	columns      map[string]int
}

func (h *header) hasColors() bool {
	_, ok := h.columns["red"]
	return ok
}

// Read parses an ASCII PLY file. Header properties may appear in any order. Triangles are
// converted from the file's counter-clockwise winding to clockwise, and faces that are not
// triangles are skipped.
func Read(path string) (*Document, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return decode(f, path)
}

// Decode parses an ASCII PLY stream.
func Decode(r io.Reader) (*Document, error) {
	return decode(r, "")
}

func decode(r io.Reader, path string) (*Document, error) {
	lr := newLineReader(r, path)
	h, err := readHeader(lr)
	if err != nil {
		return nil, err
	}

	doc := &Document{}
	for _, el := range h.elements {
		switch el.name {
		case "vertex":
			err = readVertices(lr, h, doc)
		case "face":
			err = readFaces(lr, el.count, h.vertexCount, doc)
		default:
			err = lr.skip(el)
		}
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func readHeader(lr *lineReader) (*header, error) {
	magic, err := lr.next()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(magic) != "ply" {
		return nil, lr.malformed("missing ply signature")
	}

	h := &header{columns: map[string]int{}}
	inVertex, seenVertex := false, false
	for {
		line, err := lr.next()
		if err != nil {
			return nil, err
		}
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		if inVertex && tokens[0] != "property" {
			inVertex = false
		}

		switch tokens[0] {
		case "format":
			if len(tokens) < 2 || tokens[1] != "ascii" {
				return nil, lr.malformed("unsupported format %q", strings.Join(tokens[1:], " "))
			}
			h.ascii = true
		case "comment", "obj_info":
		case "element":
			if len(tokens) != 3 {
				return nil, lr.malformed("bad element declaration %q", line)
			}
			count, err := strconv.Atoi(tokens[2])
			if err != nil || count < 0 {
				return nil, lr.malformed("bad element count %q", tokens[2])
			}
			if tokens[1] == "vertex" {
				if seenVertex {
					return nil, lr.malformed("duplicate vertex element")
				}
				h.vertexCount = count
				inVertex, seenVertex = true, true
			}
			h.elements = append(h.elements, element{name: tokens[1], count: count})
		case "property":
			if len(h.elements) == 0 {
				return nil, lr.malformed("property before any element")
			}
			if !inVertex {
				continue
			}
			if len(tokens) < 3 {
				return nil, lr.malformed("bad property declaration %q", line)
			}
			if tokens[1] == "list" {
				return nil, lr.malformed("list property on vertex element")
			}
			h.columns[tokens[len(tokens)-1]] = h.vertexFields
			h.vertexFields++
		case "end_header":
			return h, h.validate(lr)
		default:
			return nil, lr.malformed("unknown header keyword %q", tokens[0])
		}
	}
}

func (h *header) validate(lr *lineReader) error {
	if !h.ascii {
		return lr.malformed("header declares no format")
	}
	if h.vertexCount == 0 {
		return lr.malformed("header declares no vertices")
	}
	for _, axis := range []string{"x", "y", "z"} {
		if _, ok := h.columns[axis]; !ok {
			return lr.malformed("vertex property %q not declared", axis)
		}
	}
	if h.hasColors() {
		for _, channel := range []string{"green", "blue"} {
			if _, ok := h.columns[channel]; !ok {
				return lr.malformed("vertex declares red but not %s", channel)
			}
		}
	}
	return nil
}

func readVertices(lr *lineReader, h *header, doc *Document) error {
	doc.Vertices = make([]r3.Vector, 0, min(h.vertexCount, maxPrealloc))
	if h.hasColors() {
		doc.Colors = make([]color.NRGBA, 0, min(h.vertexCount, maxPrealloc))
	}
	for i := 0; i < h.vertexCount; i++ {
		line, err := lr.next()
		if err != nil {
			return lr.truncated(err, "expected %d vertices, found %d", h.vertexCount, i)
		}
		fields := strings.Fields(line)
		if len(fields) < h.vertexFields {
			return lr.malformed("vertex has %d fields, header declares %d", len(fields), h.vertexFields)
		}

		var xyz [3]float64
		for j, axis := range vertexProperties[:3] {
			v, err := strconv.ParseFloat(fields[h.columns[axis]], 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return lr.malformed("bad %s value %q", axis, fields[h.columns[axis]])
			}
			xyz[j] = v
		}
		doc.Vertices = append(doc.Vertices, r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]})

		if !h.hasColors() {
			continue
		}
		var rgb [3]uint8
		for j, channel := range vertexProperties[3:] {
			v, err := strconv.ParseUint(fields[h.columns[channel]], 10, 8)
			if err != nil {
				return lr.malformed("bad %s value %q", channel, fields[h.columns[channel]])
			}
			rgb[j] = uint8(v)
		}
		doc.Colors = append(doc.Colors, color.NRGBA{rgb[0], rgb[1], rgb[2], 255})
	}
	return nil
}

func readFaces(lr *lineReader, count, vertexCount int, doc *Document) error {
	for i := 0; i < count; i++ {
		line, err := lr.next()
		if err != nil {
			return lr.truncated(err, "expected %d faces, found %d", count, i)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "3" {
			continue
		}
		if len(fields) < 4 {
			return lr.malformed("triangle has %d indices", len(fields)-1)
		}
		var tri [3]uint32
		for j := range tri {
			idx, err := strconv.ParseUint(fields[j+1], 10, 32)
			if err != nil {
				return lr.malformed("bad vertex index %q", fields[j+1])
			}
			if idx >= uint64(vertexCount) {
				return lr.malformed("vertex index %d out of range for %d vertices", idx, vertexCount)
			}
			tri[j] = uint32(idx)
		}
		tri[1], tri[2] = tri[2], tri[1]
		doc.Triangles = append(doc.Triangles, tri)
	}
	return nil
}

type lineReader struct {
	sc   *bufio.Scanner
	path string
	line int
	eof  bool
}

func newLineReader(r io.Reader, path string) *lineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	return &lineReader{sc: sc, path: path}
}

// next returns the next line. Running out of input and lines the scanner cannot split are a
// malformed file. Errors from the underlying reader pass through.
func (lr *lineReader) next() (string, error) {
	if !lr.sc.Scan() {
		err := lr.sc.Err()
		switch {
		case err == nil:
			lr.eof = true
			return "", lr.malformed("unexpected end of file")
		case errors.Is(err, bufio.ErrTooLong):
			lr.line++
			return "", lr.malformed("line longer than %d bytes", maxLineLength)
		case errors.Is(err, bufio.ErrNegativeAdvance), errors.Is(err, bufio.ErrAdvanceTooFar):
			return "", lr.malformed("%v", err)
		default:
			return "", err
		}
	}
	lr.line++
	return lr.sc.Text(), nil
}

func (lr *lineReader) skip(el element) error {
	for i := 0; i < el.count; i++ {
		if _, err := lr.next(); err != nil {
			return lr.truncated(err, "expected %d %s records, found %d", el.count, el.name, i)
		}
	}
	return nil
}

// truncated replaces an end of file error from next with a more specific reason. Other errors pass
// through.
func (lr *lineReader) truncated(err error, format string, args ...interface{}) error {
	if lr.eof {
		return lr.malformed(format, args...)
	}
	return err
}

func (lr *lineReader) malformed(format string, args ...interface{}) error {
	return &MalformedError{Path: lr.path, Line: lr.line, Reason: fmt.Sprintf(format, args...)}
}
