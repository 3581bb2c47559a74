package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/scanfusion/logging"
	"go.viam.com/scanfusion/ply"
	"go.viam.com/scanfusion/pointcloud"
)

// infoAction prints a table row per PLY file. Folder arguments are searched recursively.
func infoAction(c *cli.Context, logger logging.Logger) error {
	if c.NArg() == 0 {
		return errors.New("expected at least one file or folder")
	}
	var loaded []ply.Loaded
	for _, path := range c.Args().Slice() {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			docs, err := ply.ReadDir(c.Context, path, logger)
			if err != nil {
				return err
			}
			loaded = append(loaded, docs...)
			continue
		}
		doc, err := ply.Read(path)
		if err != nil {
			return err
		}
		loaded = append(loaded, ply.Loaded{Path: path, Document: doc})
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Path", "Size", "Vertices", "Triangles", "Colors", "Topology", "Index"})
	for _, l := range loaded {
		size := "?"
		if info, err := os.Stat(l.Path); err == nil {
			size = units.HumanSize(float64(info.Size()))
		}
		doc := l.Document
		t.AppendRow(table.Row{
			l.Path, size, len(doc.Vertices), len(doc.Triangles),
			lo.Ternary(doc.HasColors(), "yes", "no"), doc.Topology(), doc.IndexFormat(),
		})
	}
	total := lo.SumBy(loaded, func(l ply.Loaded) int { return len(l.Document.Vertices) })
	t.AppendFooter(table.Row{strconv.Itoa(len(loaded)) + " files", "", total})
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

// describe is a one line summary used by watch.
func describe(l ply.Loaded) string {
	doc := l.Document
	colors := "no colors"
	if doc.HasColors() {
		colors = "colors"
	}
	return strings.Join([]string{
		l.Path,
		lo.Ternary(len(doc.Vertices) == 1, "1 vertex", strconv.Itoa(len(doc.Vertices))+" vertices"),
		strconv.Itoa(len(doc.Triangles)) + " triangles",
		colors,
		doc.Topology().String(),
		doc.IndexFormat().String(),
	}, "\t")
}

// convertAction rewrites a cloud in the format named by the output extension. Triangles survive
// only a PLY to PLY conversion.
func convertAction(c *cli.Context, logger logging.Logger) error {
	if c.NArg() != 2 {
		return errors.New("expected an input and an output file")
	}
	in, out := c.Args().Get(0), c.Args().Get(1)

	var doc *ply.Document
	if isPLY(in) {
		var err error
		if doc, err = ply.Read(in); err != nil {
			return err
		}
	} else {
		cloud, err := pointcloud.NewFromFile(in, logger)
		if err != nil {
			return err
		}
		doc = &ply.Document{Vertices: cloud.Positions(), Colors: cloud.Colors()}
	}

	var err error
	switch strings.ToLower(filepath.Ext(out)) {
	case ".ply":
		err = ply.WriteDocument(out, doc)
	case ".las":
		err = pointcloud.WriteToLASFile(toCloud(doc), out)
	case ".pcd":
		err = pointcloud.WritePCDFile(toCloud(doc), out)
	default:
		return errors.Errorf("do not know how to write file %q", out)
	}
	if err != nil {
		return err
	}
	printf(c.App.Writer, "wrote %d vertices to %s", len(doc.Vertices), out)
	return nil
}

func toCloud(doc *ply.Document) *pointcloud.Cloud {
	return pointcloud.NewFromArrays(doc.Vertices, doc.Colors)
}

func isPLY(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".ply")
}
