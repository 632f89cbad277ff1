package polygons

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/sells-group/pointraster/internal/db"
	"github.com/sells-group/pointraster/internal/model"
)

// DefaultSRID is the Amersfoort / RD New SRID used for envelope queries.
const DefaultSRID = 28992

// PostGIS reads polygons from a table with a geometry column named geom.
type PostGIS struct {
	Pool  db.Pool
	Table string
	SRID  int
}

// NewPostGIS returns a PostGIS source for table.
func NewPostGIS(pool db.Pool, table string, srid int) *PostGIS {
	if srid == 0 {
		srid = DefaultSRID
	}
	return &PostGIS{Pool: pool, Table: table, SRID: srid}
}

// Name implements Source.
func (p *PostGIS) Name() string { return "postgis:" + p.Table }

// Polygons implements Source. Rows whose envelope overlaps bbox are returned.
func (p *PostGIS) Polygons(ctx context.Context, bbox model.BoundingBox) ([]*geom.Polygon, error) {
	sql := fmt.Sprintf(
		"SELECT ST_AsBinary(geom) FROM %s WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, $5)",
		db.Identifier(p.Table).Sanitize(),
	)
	rows, err := p.Pool.Query(ctx, sql, bbox.XMin, bbox.YMin, bbox.XMax, bbox.YMax, p.SRID)
	if err != nil {
		return nil, eris.Wrapf(err, "polygons: query %s", p.Table)
	}
	defer rows.Close()

	var polys []*geom.Polygon
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrapf(err, "polygons: scan %s", p.Table)
		}
		g, err := wkb.Unmarshal(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "polygons: decode wkb from %s", p.Table)
		}
		polys = append(polys, Flatten(g)...)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "polygons: iterate %s", p.Table)
	}
	return polys, nil
}

// EnsureTable creates the polygon table when it does not exist. The geometry
// column is generated from the stored WKB so rows can be bulk loaded with COPY.
func (p *PostGIS) EnsureTable(ctx context.Context) error {
	table := db.Identifier(p.Table).Sanitize()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id     BIGINT PRIMARY KEY,
	source TEXT NOT NULL,
	wkb    BYTEA NOT NULL,
	geom   geometry GENERATED ALWAYS AS (ST_SetSRID(ST_GeomFromWKB(wkb), %d)) STORED
)`, table, p.SRID),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)",
			pgx.Identifier{indexName(p.Table)}.Sanitize(), table),
	}
	for _, s := range stmts {
		if _, err := p.Pool.Exec(ctx, s); err != nil {
			return eris.Wrapf(err, "polygons: ensure table %s", p.Table)
		}
	}
	return nil
}

// Load bulk-inserts polys tagged with source, numbering rows from firstID.
func (p *PostGIS) Load(ctx context.Context, source string, firstID int64, polys []*geom.Polygon) (int64, error) {
	rows := make([][]any, 0, len(polys))
	for i, poly := range polys {
		raw, err := wkb.Marshal(poly, binary.LittleEndian)
		if err != nil {
			return 0, eris.Wrapf(err, "polygons: encode polygon %d", i)
		}
		rows = append(rows, []any{firstID + int64(i), source, raw})
	}
	return db.CopyFrom(ctx, p.Pool, p.Table, []string{"id", "source", "wkb"}, rows)
}

func indexName(table string) string {
	id := db.Identifier(table)
	return id[len(id)-1] + "_geom_idx"
}
