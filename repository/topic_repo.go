package repository

import (
	"context"

	"github.com/falcata-iot/edge/core/csql"
	"github.com/falcata-iot/edge/domain"
)

// TopicRepository is the Repository Layer accessor for MqttTopic rows.
// Its discriminator column per spec.md §4.C is "device_id" — every topic
// row is the same concrete type, so FromRow is a plain scan.
type TopicRepository struct {
	*Repository[*domain.MqttTopic]
	db *csql.DB
}

// NewTopicRepository creates the device_topics table if needed and
// returns a bound TopicRepository.
func NewTopicRepository(db *csql.DB) *TopicRepository {
	mustExec(db, `CREATE TABLE IF NOT EXISTS `+db.Schema+`.device_topics (
		id varchar PRIMARY KEY,
		device_id varchar NOT NULL,
		role varchar NOT NULL,
		topic varchar NOT NULL,
		qos smallint NOT NULL DEFAULT 0,
		retain_handling smallint NOT NULL DEFAULT 0,
		retain_as_published bool NOT NULL DEFAULT false,
		auto_feedback bool NOT NULL DEFAULT false,
		direction varchar NOT NULL,
		enabled bool NOT NULL DEFAULT true,
		metadata json NOT NULL DEFAULT '{}',
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	);`)

	cols := `id, device_id, role, topic, qos, retain_handling, retain_as_published, auto_feedback,
		direction, enabled, metadata, created_at, updated_at`
	trait := Trait[*domain.MqttTopic]{
		SelectAllSql:  `SELECT ` + cols + ` FROM ` + db.Schema + `.device_topics ORDER BY created_at ASC;`,
		SelectByIDSql: `SELECT ` + cols + ` FROM ` + db.Schema + `.device_topics WHERE id = $1;`,
		ListSql:       `SELECT ` + cols + ` FROM ` + db.Schema + `.device_topics WHERE device_id = $1 ORDER BY created_at ASC LIMIT $2;`,
		InsertSql: `INSERT INTO ` + db.Schema + `.device_topics(
				id, device_id, role, topic, qos, retain_handling, retain_as_published, auto_feedback, direction, enabled, metadata)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id;`,
		UpdateSql: `UPDATE ` + db.Schema + `.device_topics SET
				role=$1, topic=$2, qos=$3, retain_handling=$4, retain_as_published=$5, auto_feedback=$6,
				direction=$7, enabled=$8, metadata=$9, updated_at=now()
			WHERE id=$10;`,
		DeleteSql: `DELETE FROM ` + db.Schema + `.device_topics WHERE id=$1;`,
		FromRow:   scanTopic,
	}
	return &TopicRepository{Repository: New(db, trait), db: db}
}

// ListAll returns every topic row in created_at order; the Device
// Manager groups the result by device_id itself.
func (r *TopicRepository) ListAll(ctx context.Context) ([]*domain.MqttTopic, error) {
	return r.FindAll(ctx)
}

func scanTopic(s Scanner) (*domain.MqttTopic, error) {
	t := &domain.MqttTopic{}
	var role, direction string
	err := s.Scan(&t.ID, &t.DeviceID, &role, &t.Topic, &t.Qos, &t.RetainHandling,
		&t.RetainAsPublished, &t.AutoFeedback, &direction, &t.Enabled, &t.Metadata,
		&t.CreatedAt, &t.UpdatedAt)
	t.Role = domain.TopicRole(role)
	t.Direction = domain.Direction(direction)
	return t, err
}
