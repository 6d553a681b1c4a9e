package repository

import (
	"context"

	"github.com/falcata-iot/edge/core/csql"
	"github.com/falcata-iot/edge/domain"
)

// EventRepository is the Repository Layer accessor for Event rows. Its
// discriminator column per spec.md §4.C is "device_id" — same rationale
// as TopicRepository for not type-dispatching.
type EventRepository struct {
	*Repository[*domain.Event]
	db *csql.DB
}

// NewEventRepository creates the events table if needed and returns a
// bound EventRepository.
func NewEventRepository(db *csql.DB) *EventRepository {
	mustExec(db, `CREATE TABLE IF NOT EXISTS `+db.Schema+`.events (
		id varchar PRIMARY KEY,
		ts timestamptz NOT NULL,
		source varchar NOT NULL,
		type varchar NOT NULL,
		severity varchar NOT NULL,
		site_id varchar NOT NULL DEFAULT '',
		zone_id varchar NOT NULL DEFAULT '',
		device_id varchar NOT NULL DEFAULT '',
		correlation_id varchar NOT NULL DEFAULT '',
		payload json NOT NULL DEFAULT '{}'
	);`)

	cols := `id, ts, source, type, severity, site_id, zone_id, device_id, correlation_id, payload`
	trait := Trait[*domain.Event]{
		SelectAllSql:  `SELECT ` + cols + ` FROM ` + db.Schema + `.events ORDER BY ts ASC;`,
		SelectByIDSql: `SELECT ` + cols + ` FROM ` + db.Schema + `.events WHERE id = $1;`,
		ListSql:       `SELECT ` + cols + ` FROM ` + db.Schema + `.events WHERE device_id = $1 ORDER BY ts DESC LIMIT $2;`,
		InsertSql: `INSERT INTO ` + db.Schema + `.events(
				id, ts, source, type, severity, site_id, zone_id, device_id, correlation_id, payload)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id;`,
		DeleteSql: `DELETE FROM ` + db.Schema + `.events WHERE id=$1;`,
		FromRow:   scanEvent,
	}
	return &EventRepository{Repository: New(db, trait), db: db}
}

// Emit persists an Event, the sole write path the Broker Session Manager
// and Command Dispatcher use per SPEC_FULL.md's Event emission feature.
func (r *EventRepository) Emit(ctx context.Context, e *domain.Event) error {
	_, err := r.Insert(ctx, e.InsertParams()...)
	return err
}

func scanEvent(s Scanner) (*domain.Event, error) {
	e := &domain.Event{}
	var source, severity string
	err := s.Scan(&e.ID, &e.Ts, &source, &e.Type, &severity, &e.SiteID, &e.ZoneID,
		&e.DeviceID, &e.CorrelationID, &e.Payload)
	e.Source = domain.EventSource(source)
	e.Severity = domain.EventSeverity(severity)
	return e, err
}
