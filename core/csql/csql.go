package csql

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/lib/pq"
)

// DB encapsulates a standard sql.DB with a schema
type DB struct {
	*sql.DB
	Schema string

	dataSourceName string
}

// ErrNoRows is returned by Scan when QueryRow doesn't return a
// row. In such a case, QueryRow returns a placeholder *Row value that
// defers this error until a Scan.
var ErrNoRows = sql.ErrNoRows

// OpenWithSchema opens a postgres database with a schema.
// A non-empty schema gets created if it does not exist yet, and the
// uuid-ossp extension is loaded. An empty schema selects "public", and
// then neither the schema nor the extension is created.
func OpenWithSchema(dataSourceName, schema string) *DB {
	log.Println("connecting to postgres database: ", dataSourceName)
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		panic(err)
	}
	err = db.Ping()
	if err != nil {
		panic(err)
	}
	if len(schema) == 0 {
		schema = "public"
	} else {
		log.Println("selected database schema:", schema)
		_, err = db.Exec(`CREATE extension IF NOT EXISTS "uuid-ossp";
CREATE schema IF NOT EXISTS ` + schema + `;
`)
		if err != nil {
			panic(err)
		}
	}
	return &DB{DB: db, Schema: schema, dataSourceName: dataSourceName}
}

// Listen blocks, calling fn on every notification received on the given
// postgres NOTIFY channel, until ctx is cancelled. It reconnects
// with a small backoff if the listener connection drops, matching the
// bounded-backoff behavior spec.md §9 calls for in place of a polling loop.
func (db *DB) Listen(ctx context.Context, channel string, fn func()) error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Println("csql: listener event on", channel, ":", err.Error())
		}
	}
	listener := pq.NewListener(db.dataSourceName, 10*time.Second, time.Minute, reportProblem)
	defer listener.Close()

	if err := listener.Listen(channel); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-listener.Notify:
			if n == nil {
				// connection was lost and re-established; treat as a
				// missed-notification signal and let the caller reload.
				fn()
				continue
			}
			fn()
		case <-time.After(90 * time.Second):
			go func() {
				_ = listener.Ping()
			}()
		}
	}
}

// ClearSchema clears all the data contained in the database's schema
// Technically this is done by dropping the schema and then recreating it
func (db *DB) ClearSchema() {
	if db.Schema == "public" {
		panic("refuse to drop public schema")
	}
	_, err := db.Exec(`DROP SCHEMA ` + db.Schema + ` CASCADE;
	CREATE schema IF NOT EXISTS ` + db.Schema + `;`)
	if err != nil {
		log.Println("clear schema error:", db.Schema, err.Error())
	}
}
