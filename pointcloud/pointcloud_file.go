package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/scanfusion/logging"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
)

// LAS coordinates are stored as scaled int32 values, so magnitudes beyond this lose precision.
const maxPreciseCoordinate = float64(math.MaxInt32) / 1000

// NewFromFile returns a cloud read from a LAS or PCD file.
func NewFromFile(fn string, logger logging.Logger) (*Cloud, error) {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".las":
		return NewFromLASFile(fn, logger)
	case ".pcd":
		//nolint:gosec
		f, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		return ReadPCD(f)
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
}

// NewFromLASFile returns a cloud from reading a LAS file. Points outside the precisely
// representable range are reported but kept.
func NewFromLASFile(fn string, logger logging.Logger) (*Cloud, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	cloud := NewWithPrealloc(lf.Header.NumberPoints)
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, err
		}
		data := p.PointData()
		v := r3.Vector{X: data.X, Y: data.Y, Z: data.Z}
		if math.Abs(v.X) > maxPreciseCoordinate || math.Abs(v.Y) > maxPreciseCoordinate ||
			math.Abs(v.Z) > maxPreciseCoordinate {
			logger.Warnw("potential floating point lossiness for LAS point", "point", v)
		}

		c := color.NRGBA{255, 255, 255, 255}
		if lf.Header.PointFormatID == 2 && p.RgbData() != nil {
			rgb := p.RgbData()
			c = color.NRGBA{uint8(rgb.Red / 256), uint8(rgb.Green / 256), uint8(rgb.Blue / 256), 255}
		}
		cloud.Append(v, c)
	}
	return cloud, nil
}

// WriteToLASFile writes the cloud out to a colored LAS file.
func WriteToLASFile(cloud *Cloud, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return
	}
	defer func() {
		cerr := lf.Close()
		err = multierr.Combine(err, cerr)
	}()

	if err = lf.AddHeader(lidario.LasHeader{PointFormatID: 2}); err != nil {
		return
	}

	var lastErr error
	cloud.Iterate(func(_ int, s Sample) bool {
		pr0 := &lidario.PointRecord0{
			X: s.Position.X,
			Y: s.Position.Y,
			Z: s.Position.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			PointSourceID: 1,
		}
		lp := &lidario.PointRecord2{
			PointRecord0: pr0,
			RGB: &lidario.RgbData{
				Red:   uint16(s.Color.R) * 256,
				Green: uint16(s.Color.G) * 256,
				Blue:  uint16(s.Color.B) * 256,
			},
		}
		if lerr := lf.AddLasPoint(lp); lerr != nil {
			lastErr = lerr
			return false
		}
		return true
	})
	if lastErr != nil {
		err = lastErr
	}
	return
}

func colorToPCDInt(c color.NRGBA) int {
	return int(c.R)<<16 | int(c.G)<<8 | int(c.B)
}

func pcdIntToColor(c int) color.NRGBA {
	return color.NRGBA{uint8(0xFF & (c >> 16)), uint8(0xFF & (c >> 8)), uint8(0xFF & c), 255}
}

// ToPCD writes the cloud as a PCD v0.7 document with packed rgb.
func ToPCD(cloud *Cloud, out io.Writer, outputType PCDType) error {
	if _, err := fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS x y z rgb\n"+
		"SIZE 4 4 4 4\n"+
		"TYPE F F F I\n"+
		"COUNT 1 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		cloud.Size(), cloud.Size()); err != nil {
		return err
	}

	var err error
	switch outputType {
	case PCDBinary:
		_, err = fmt.Fprintf(out, "DATA binary\n")
	case PCDAscii:
		_, err = fmt.Fprintf(out, "DATA ascii\n")
	default:
		return errors.Errorf("unsupported pcd type %d", outputType)
	}
	if err != nil {
		return err
	}

	cloud.Iterate(func(_ int, s Sample) bool {
		c := colorToPCDInt(s.Color)
		switch outputType {
		case PCDBinary:
			buf := make([]byte, 16)
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(s.Position.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(s.Position.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(s.Position.Z)))
			binary.LittleEndian.PutUint32(buf[12:], uint32(c))
			_, err = out.Write(buf)
		case PCDAscii:
			_, err = fmt.Fprintf(out, "%f %f %f %d\n", s.Position.X, s.Position.Y, s.Position.Z, c)
		}
		return err == nil
	})
	return err
}

// WritePCDFile writes the cloud to fn in ascii PCD.
func WritePCDFile(cloud *Cloud, fn string) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err = ToPCD(cloud, w, PCDAscii); err != nil {
		return err
	}
	return w.Flush()
}

// ReadPCD reads an ascii PCD document with x y z and optional rgb fields.
func ReadPCD(in io.Reader) (*Cloud, error) {
	scanner := bufio.NewScanner(in)
	fields := map[string]int{}
	points := -1
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens := strings.Fields(line)
		switch tokens[0] {
		case "FIELDS":
			for i, name := range tokens[1:] {
				fields[name] = i
			}
		case "POINTS":
			if len(tokens) != 2 {
				return nil, errors.Errorf("bad POINTS line %q", line)
			}
			n, err := strconv.Atoi(tokens[1])
			if err != nil {
				return nil, errors.Wrap(err, "bad POINTS line")
			}
			points = n
		case "DATA":
			if len(tokens) != 2 || tokens[1] != "ascii" {
				return nil, errors.Errorf("unsupported pcd data format %q", line)
			}
			return readPCDASCII(scanner, fields, points)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("pcd header has no DATA line")
}

func readPCDASCII(scanner *bufio.Scanner, fields map[string]int, points int) (*Cloud, error) {
	for _, axis := range []string{"x", "y", "z"} {
		if _, ok := fields[axis]; !ok {
			return nil, errors.Errorf("pcd missing field %q", axis)
		}
	}
	rgbIdx, hasColor := fields["rgb"]

	cloud := NewWithPrealloc(max(points, 0))
	for scanner.Scan() {
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 0 {
			continue
		}
		if len(tokens) < len(fields) {
			return nil, errors.Errorf("pcd row %d has %d values, want %d", cloud.Size(), len(tokens), len(fields))
		}
		var v [3]float64
		for i, axis := range []string{"x", "y", "z"} {
			f, err := strconv.ParseFloat(tokens[fields[axis]], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "pcd row %d", cloud.Size())
			}
			v[i] = f
		}
		c := color.NRGBA{255, 255, 255, 255}
		if hasColor {
			packed, err := strconv.Atoi(tokens[rgbIdx])
			if err != nil {
				return nil, errors.Wrapf(err, "pcd row %d", cloud.Size())
			}
			c = pcdIntToColor(packed)
		}
		cloud.Append(r3.Vector{X: v[0], Y: v[1], Z: v[2]}, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if points >= 0 && cloud.Size() != points {
		return nil, errors.Errorf("pcd declared %d points but has %d", points, cloud.Size())
	}
	return cloud, nil
}
