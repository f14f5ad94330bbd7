package tilemap

// Properties are custom string properties attached to maps, layers,
// tilesets, tiles and objects.
type Properties map[string]string

func (p Properties) clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Flags carries the orientation of a placed tile.
type Flags uint8

const (
	FlipHorizontally Flags = 1 << iota
	FlipVertically
	FlipAntiDiagonally
	RotatedHexagonal120
)

// Tileset is a named collection of tiles. Tiles keep a pointer back to their
// tileset, so tilesets are shared (not copied) between map states.
type Tileset struct {
	Name       string
	Image      string
	TileWidth  int
	TileHeight int
	Properties Properties

	tiles []*Tile
}

type Tile struct {
	ID         int
	Image      string
	Properties Properties

	tileset *Tileset
}

func NewTileset(name string, tileWidth, tileHeight int) *Tileset {
	return &Tileset{Name: name, TileWidth: tileWidth, TileHeight: tileHeight}
}

// AddTile appends a tile with the next free id.
func (ts *Tileset) AddTile(image string) *Tile {
	t := &Tile{ID: len(ts.tiles), Image: image, tileset: ts}
	ts.tiles = append(ts.tiles, t)
	return t
}

// Tile returns the tile with the given id, or nil.
func (ts *Tileset) Tile(id int) *Tile {
	if id < 0 || id >= len(ts.tiles) {
		return nil
	}
	return ts.tiles[id]
}

func (ts *Tileset) TileCount() int { return len(ts.tiles) }

func (ts *Tileset) Tiles() []*Tile {
	out := make([]*Tile, len(ts.tiles))
	copy(out, ts.tiles)
	return out
}

func (t *Tile) Tileset() *Tileset { return t.tileset }

// ImageFileName is the tile's own image, falling back to the tileset atlas.
func (t *Tile) ImageFileName() string {
	if t.Image != "" || t.tileset == nil {
		return t.Image
	}
	return t.tileset.Image
}

// Cell is one grid position. A nil Tile means the cell is empty.
type Cell struct {
	Tile  *Tile
	Flags Flags
}

func (c Cell) Empty() bool { return c.Tile == nil }
