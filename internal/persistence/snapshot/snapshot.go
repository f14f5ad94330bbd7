package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"tileforge.dev/internal/tilemap"
)

const Version = 1

// Ext is the file extension of compressed snapshots.
const Ext = ".tmap.zst"

type Header struct {
	Version  int    `json:"version"`
	Name     string `json:"name"`
	Revision int    `json:"revision"`
	SavedAt  string `json:"saved_at,omitempty"`
}

// DocumentV1 is the stored form of a map.
type DocumentV1 struct {
	Header Header `json:"header"`

	Infinite   bool              `json:"infinite,omitempty"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	TileWidth  int               `json:"tile_width"`
	TileHeight int               `json:"tile_height"`
	Properties map[string]string `json:"properties,omitempty"`

	NextLayerID  int `json:"next_layer_id"`
	NextObjectID int `json:"next_object_id"`

	Tilesets  []TilesetV1    `json:"tilesets"`
	Layers    []LayerV1      `json:"layers"`
	Selection []tilemap.Rect `json:"selection,omitempty"`
}

type TilesetV1 struct {
	FirstGID   uint32            `json:"first_gid"`
	Name       string            `json:"name"`
	Image      string            `json:"image,omitempty"`
	TileWidth  int               `json:"tile_width"`
	TileHeight int               `json:"tile_height"`
	Properties map[string]string `json:"properties,omitempty"`
	Tiles      []TileV1          `json:"tiles"`
}

type TileV1 struct {
	Image      string            `json:"image,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

const (
	KindTile   = "tile"
	KindObject = "object"
	KindGroup  = "group"
)

type LayerV1 struct {
	Kind       string            `json:"kind"`
	ID         int               `json:"id"`
	Name       string            `json:"name"`
	Hidden     bool              `json:"hidden,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`

	// Tile layers. Cells covers Region row-major; GIDs and Flags are
	// RLE-encoded parallel streams (gid 0 = empty).
	Region *tilemap.Rect `json:"region,omitempty"`
	GIDs   string        `json:"gids,omitempty"`
	Flags  string        `json:"flags,omitempty"`

	Objects []ObjectV1 `json:"objects,omitempty"`
	Layers  []LayerV1  `json:"layers,omitempty"`
}

type ObjectV1 struct {
	ID         int               `json:"id"`
	Name       string            `json:"name,omitempty"`
	Class      string            `json:"class,omitempty"`
	Shape      int               `json:"shape"`
	X          float64           `json:"x"`
	Y          float64           `json:"y"`
	Width      float64           `json:"width,omitempty"`
	Height     float64           `json:"height,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

func WriteSnapshot(path string, doc DocumentV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, doc); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, doc DocumentV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(doc.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&doc); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (DocumentV1, error) {
	var doc DocumentV1
	f, err := os.Open(path)
	if err != nil {
		return doc, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return doc, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	var h Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		return doc, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return doc, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return doc, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}

	if err := gob.NewDecoder(br).Decode(&doc); err != nil {
		return doc, fmt.Errorf("gob decode: %w", err)
	}
	return doc, nil
}

// ReadHeader reads only the header line of a snapshot.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	err = json.Unmarshal(line, &h)
	return h, err
}
