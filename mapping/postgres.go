package mapping

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"

	"github.com/eizes/gis-gateway/vault"
)

// pgMapsDB implements mapsDB over a single short-lived pgx connection to the
// mapping service's database.
type pgMapsDB struct {
	conn *pgx.Conn
}

func dialMapsDB(ctx context.Context, db *vault.Database) (mapsDB, error) {
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		url.QueryEscape(db.User),
		url.QueryEscape(db.Password.Reveal()),
		db.Host, db.Port,
		url.PathEscape(db.Name),
	)
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &pgMapsDB{conn: conn}, nil
}

func (db *pgMapsDB) OwnedMaps(ctx context.Context, username string) ([]Map, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT m.id, m.name, COALESCE(m.description, ''), m.modified_at
		 FROM umap_map m
		 JOIN auth_user u ON u.id = m.owner_id
		 WHERE u.username = $1
		 ORDER BY m.modified_at DESC`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var maps []Map
	for rows.Next() {
		var m Map
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.UpdatedAt); err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	return maps, rows.Err()
}

func (db *pgMapsDB) LayerCount(ctx context.Context, mapID int64) (int, error) {
	var count int
	err := db.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM umap_datalayer WHERE map_id = $1`, mapID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (db *pgMapsDB) Close(ctx context.Context) error {
	return db.conn.Close(ctx)
}
