package repository

import (
	"context"
	"time"

	"github.com/falcata-iot/edge/core/csql"
	"github.com/falcata-iot/edge/domain"
)

// CommandRepository is the Repository Layer accessor for Command rows,
// plus the pending-sweep and retry operations the Command Dispatcher
// (§4.H) needs beyond plain CRUD.
type CommandRepository struct {
	*Repository[*domain.Command]
	db *csql.DB
}

// NewCommandRepository creates the device_commands table if needed and
// returns a bound CommandRepository.
func NewCommandRepository(db *csql.DB) *CommandRepository {
	mustExec(db, `CREATE TABLE IF NOT EXISTS `+db.Schema+`.device_commands (
		id varchar PRIMARY KEY,
		device_id varchar NOT NULL,
		command varchar NOT NULL,
		params json NOT NULL DEFAULT '{}',
		status varchar NOT NULL DEFAULT 'pending',
		attempts int NOT NULL DEFAULT 0,
		next_retry_at timestamptz,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		sent_at timestamptz,
		ack_at timestamptz,
		error varchar NOT NULL DEFAULT ''
	);`)

	cols := `id, device_id, command, params, status, attempts, next_retry_at, created_at, updated_at, sent_at, ack_at, error`
	trait := Trait[*domain.Command]{
		SelectAllSql:  `SELECT ` + cols + ` FROM ` + db.Schema + `.device_commands ORDER BY created_at ASC;`,
		SelectByIDSql: `SELECT ` + cols + ` FROM ` + db.Schema + `.device_commands WHERE id = $1;`,
		InsertSql: `INSERT INTO ` + db.Schema + `.device_commands(id, device_id, command, params, status)
			VALUES ($1,$2,$3,$4,$5) RETURNING id;`,
		DeleteSql: `DELETE FROM ` + db.Schema + `.device_commands WHERE id=$1;`,
		FromRow:   scanCommand,
	}
	return &CommandRepository{Repository: New(db, trait), db: db}
}

// FetchPending returns up to limit commands with status='pending',
// ordered by created_at ascending, per spec.md §4.H step 1.
func (r *CommandRepository) FetchPending(ctx context.Context, limit int) ([]*domain.Command, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, command, params, status, attempts, next_retry_at, created_at, updated_at, sent_at, ack_at, error
		 FROM `+r.db.Schema+`.device_commands WHERE status='pending' ORDER BY created_at ASC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows, scanCommand)
}

// MarkSent transitions a command to sent, stamping sent_at.
func (r *CommandRepository) MarkSent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE `+r.db.Schema+`.device_commands SET status='sent', sent_at=now(), updated_at=now() WHERE id=$1;`, id)
	return err
}

// MarkAcked transitions a command to acked, stamping ack_at.
func (r *CommandRepository) MarkAcked(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE `+r.db.Schema+`.device_commands SET status='acked', ack_at=now(), updated_at=now() WHERE id=$1;`, id)
	return err
}

// MarkFailed transitions a command to failed, recording errMsg.
func (r *CommandRepository) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE `+r.db.Schema+`.device_commands SET status='failed', error=$1, updated_at=now() WHERE id=$2;`, errMsg, id)
	return err
}

// ScheduleRetry moves a command to status='retry', increments attempts,
// and sets next_retry_at = now + delaySec, per spec.md §4.H.
func (r *CommandRepository) ScheduleRetry(ctx context.Context, id string, delaySec int, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE `+r.db.Schema+`.device_commands
		 SET status='retry', attempts=attempts+1, next_retry_at=now()+($1 || ' seconds')::interval,
			 error=$2, updated_at=now()
		 WHERE id=$3;`, delaySec, errMsg, id)
	return err
}

// PromoteDueRetries requeues every row with status='retry' and
// next_retry_at <= now back to status='pending', the separate sweep
// spec.md §4.H requires but does not name as a dedicated component.
// It returns the number of rows promoted.
func (r *CommandRepository) PromoteDueRetries(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE `+r.db.Schema+`.device_commands SET status='pending', updated_at=now()
		 WHERE status='retry' AND next_retry_at <= $1;`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanCommand(s Scanner) (*domain.Command, error) {
	c := &domain.Command{}
	var status string
	err := s.Scan(&c.ID, &c.DeviceID, &c.CommandName, &c.Params, &status, &c.Attempts,
		&c.NextRetryAt, &c.CreatedAt, &c.UpdatedAt, &c.SentAt, &c.AckAt, &c.Error)
	c.Status = domain.CommandStatus(status)
	return c, err
}
