// Command tileforge edits map documents on disk without a server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"tileforge.dev/internal/actions"
	"tileforge.dev/internal/editor"
	"tileforge.dev/internal/persistence/snapshot"
	"tileforge.dev/internal/scripthost"
	"tileforge.dev/internal/settings"
	"tileforge.dev/internal/tilemap"
	"tileforge.dev/internal/tilemap/export"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "tileforge:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: tileforge new|info|actions|apply|paint|export|formats|script [flags]")
	}
	switch args[0] {
	case "new":
		return newCmd(args[1:], stdout)
	case "info":
		return infoCmd(args[1:], stdout)
	case "actions":
		return actionsCmd(args[1:], stdout)
	case "apply":
		return applyCmd(args[1:], stdout)
	case "paint":
		return paintCmd(args[1:], stdout)
	case "export":
		return exportCmd(args[1:], stdout)
	case "formats":
		for _, n := range export.Names() {
			f, _ := export.Lookup(n)
			fmt.Fprintf(stdout, "%s\t.%s\t%s\n", n, f.Extension(), f.Description())
		}
		return nil
	case "script":
		return scriptCmd(args[1:], stdout)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func newCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("new", flag.ContinueOnError)
	out := fs.String("out", "", "output path (.tmap.zst or .json)")
	w := fs.Int("w", 20, "width in tiles")
	h := fs.Int("h", 15, "height in tiles")
	tw := fs.Int("tw", 16, "tile width in pixels")
	th := fs.Int("th", 16, "tile height in pixels")
	infinite := fs.Bool("infinite", false, "unbounded map")
	layers := fs.String("layers", "ground", "comma separated tile layer names")
	tileset := fs.String("tileset", "", "add a tileset with this name (optional)")
	tiles := fs.String("tiles", "", "comma separated tile images for -tileset")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		return fmt.Errorf("missing -out")
	}
	if !*infinite && (*w <= 0 || *h <= 0) {
		return fmt.Errorf("-w and -h must be > 0")
	}

	m := tilemap.New(*w, *h, *tw, *th)
	if *infinite {
		m = tilemap.NewInfinite(*tw, *th)
	}
	if name := strings.TrimSpace(*tileset); name != "" {
		ts := tilemap.NewTileset(name, *tw, *th)
		for _, img := range strings.Split(*tiles, ",") {
			if img = strings.TrimSpace(img); img != "" {
				ts.AddTile(img)
			}
		}
		m.AddTileset(ts)
	}
	for _, name := range strings.Split(*layers, ",") {
		if name = strings.TrimSpace(name); name != "" {
			m.AddLayer(m.NewTileLayer(name))
		}
	}
	sess := editor.New(editor.Config{})
	if _, err := sess.Add(editor.DocIDFromPath(*out), m); err != nil {
		return err
	}
	p, err := sess.SaveAs(context.Background(), "", *out)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s %dx%d\n", p, m.Width, m.Height)
	return nil
}

func infoCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	in := fs.String("in", "", "document path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	doc, err := snapshot.Read(*in)
	if err != nil {
		return err
	}
	m, err := snapshot.ToMap(doc)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "name=%s rev=%d saved=%s\n", doc.Header.Name, doc.Header.Revision, doc.Header.SavedAt)
	fmt.Fprintf(stdout, "size=%dx%d tile=%dx%d infinite=%v\n", m.Width, m.Height, m.TileWidth, m.TileHeight, m.Infinite)
	for _, ts := range m.Tilesets {
		fmt.Fprintf(stdout, "tileset %s\n", ts.Name)
	}
	m.Walk(func(l tilemap.Layer, depth int) tilemap.Visit {
		fmt.Fprintf(stdout, "%slayer %s %s\n", strings.Repeat("  ", depth), l.Kind(), l.Info().Name)
		return tilemap.Continue
	})
	return nil
}

func actionsCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("actions", flag.ContinueOnError)
	settingsPath := fs.String("settings", "", "settings.yaml with action overrides (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	reg, err := registry(*settingsPath)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, a := range reg.List() {
		state := ""
		if a.Disabled {
			state = "disabled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.ID, a.Text, a.Shortcut, state)
	}
	return tw.Flush()
}

func applyCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	in := fs.String("in", "", "document path")
	out := fs.String("out", "", "output path (default: overwrite -in)")
	action := fs.String("action", "", "action id, e.g. InsertRowsAt")
	sel := fs.String("sel", "", "selection x,y,w,h")
	settingsPath := fs.String("settings", "", "settings.yaml (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*action) == "" {
		return fmt.Errorf("missing -action")
	}
	var rect *tilemap.Rect
	if strings.TrimSpace(*sel) != "" {
		r, err := parseRect(*sel)
		if err != nil {
			return fmt.Errorf("bad -sel: %w", err)
		}
		rect = &r
	}

	sess, d, err := openSession(*in, *settingsPath)
	if err != nil {
		return err
	}
	ctx := editor.WithSource(context.Background(), "cli")
	res, err := sess.RunOn(ctx, d.ID, *action, rect)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s applied=%v size=%dx%d->%dx%d\n", res.Action, res.Applied, res.Before.W, res.Before.H, d.Map.Width, d.Map.Height)
	if !res.Applied {
		return nil
	}
	p, err := sess.SaveAs(ctx, d.ID, *out)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s rev=%d\n", p, d.Revision)
	return nil
}

func paintCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("paint", flag.ContinueOnError)
	in := fs.String("in", "", "document path")
	layer := fs.String("layer", "", "tile layer name (default: first tile layer)")
	tileset := fs.String("tileset", "", "tileset name (default: first tileset)")
	tile := fs.Int("tile", 0, "tile id within the tileset")
	from := fs.String("from", "", "drag start x,y")
	to := fs.String("to", "", "drag end x,y (default: -from)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	start, err := parsePoint(*from)
	if err != nil {
		return fmt.Errorf("bad -from: %w", err)
	}
	end := start
	if strings.TrimSpace(*to) != "" {
		if end, err = parsePoint(*to); err != nil {
			return fmt.Errorf("bad -to: %w", err)
		}
	}

	sess, d, err := openSession(*in, "")
	if err != nil {
		return err
	}
	var ts *tilemap.Tileset
	for _, t := range d.Map.Tilesets {
		if *tileset == "" || t.Name == *tileset {
			ts = t
			break
		}
	}
	if ts == nil || ts.Tile(*tile) == nil {
		return fmt.Errorf("no tile %d in tileset %q", *tile, *tileset)
	}
	name := *layer
	if name == "" {
		d.Map.Walk(func(l tilemap.Layer, _ int) tilemap.Visit {
			if l.Kind() == tilemap.KindTile {
				name = l.Info().Name
				return tilemap.Stop
			}
			return tilemap.Continue
		})
	}

	stamp := tilemap.NewTileLayer("stamp", 1, 1)
	e := stamp.Edit()
	e.SetTile(0, 0, ts.Tile(*tile), 0)
	e.Apply()

	ctx := editor.WithSource(context.Background(), "cli")
	n, err := sess.Paint(ctx, d.ID, name, stamp, start, end)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "painted %d cells on %s\n", n, name)
	if n == 0 {
		return nil
	}
	p, err := sess.Save(ctx, d.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s rev=%d\n", p, d.Revision)
	return nil
}

func exportCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	in := fs.String("in", "", "document path")
	out := fs.String("out", "", "output path")
	format := fs.String("format", "videogame", "export format (see formats)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		return fmt.Errorf("missing -out")
	}
	doc, err := snapshot.Read(*in)
	if err != nil {
		return err
	}
	m, err := snapshot.ToMap(doc)
	if err != nil {
		return err
	}
	p, err := export.WriteFile(*format, *out, m)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported %s\n", p)
	return nil
}

func scriptCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("script", flag.ContinueOnError)
	in := fs.String("in", "", "document path")
	file := fs.String("file", "", "script file")
	save := fs.Bool("save", false, "save the document when the script changed it")
	timeout := fs.Duration("timeout", 2*time.Second, "script timeout")
	settingsPath := fs.String("settings", "", "settings.yaml (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sess, d, err := openSession(*in, *settingsPath)
	if err != nil {
		return err
	}
	host := scripthost.New(sess, scripthost.Config{
		Timeout: *timeout,
		Logger:  log.New(os.Stderr, "[script] ", log.LstdFlags),
	})
	res, err := host.RunFile(context.Background(), *file)
	for _, l := range res.Logs {
		fmt.Fprintln(stdout, l)
	}
	if err != nil {
		return err
	}
	if res.Value != nil {
		fmt.Fprintf(stdout, "=> %v\n", res.Value)
	}
	if *save && d.Dirty {
		p, err := sess.Save(context.Background(), d.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s rev=%d\n", p, d.Revision)
	}
	return nil
}

func registry(settingsPath string) (*actions.Registry, error) {
	reg := actions.Default()
	if strings.TrimSpace(settingsPath) == "" {
		return reg, nil
	}
	cfg, err := settings.Load(settingsPath)
	if err != nil {
		return nil, err
	}
	if unknown := reg.ApplyOverrides(cfg.Actions); len(unknown) > 0 {
		return nil, fmt.Errorf("settings: unknown actions %s", strings.Join(unknown, ","))
	}
	return reg, nil
}

func openSession(path, settingsPath string) (*editor.Session, *editor.Document, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, fmt.Errorf("missing -in")
	}
	reg, err := registry(settingsPath)
	if err != nil {
		return nil, nil, err
	}
	sess := editor.New(editor.Config{Registry: reg})
	d, err := sess.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return sess, d, nil
}

func parsePoint(s string) (tilemap.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return tilemap.Point{}, fmt.Errorf("want x,y")
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return tilemap.Point{}, err
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return tilemap.Point{}, err
	}
	return tilemap.Point{X: x, Y: y}, nil
}

func parseRect(s string) (tilemap.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return tilemap.Rect{}, fmt.Errorf("want x,y,w,h")
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return tilemap.Rect{}, err
		}
		v[i] = n
	}
	if v[2] < 0 || v[3] < 0 {
		return tilemap.Rect{}, fmt.Errorf("negative size")
	}
	return tilemap.R(v[0], v[1], v[2], v[3]), nil
}
