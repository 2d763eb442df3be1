package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	appErr "github.com/cvdexinfo/acta-approval/internal/errors"
	"github.com/cvdexinfo/acta-approval/internal/model"
)

// queryTimeout bounds every store round trip.
const queryTimeout = 5 * time.Second

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

func (ps *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return ps.db.Ping(ctx)
}

const recordColumns = `subject_id, item_id, approval_token, status, sent_at, decided_at, comment`

func scanRecord(row pgx.Row) (model.DecisionRecord, error) {
	var rec model.DecisionRecord
	var comment *string
	err := row.Scan(
		&rec.SubjectID, &rec.ItemID, &rec.ApprovalToken, &rec.Status,
		&rec.SentAt, &rec.DecidedAt, &comment,
	)
	if comment != nil {
		rec.Comment = *comment
	}
	return rec, err
}

func (ps *PostgresStore) Get(ctx context.Context, subjectID, itemID string) (model.DecisionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
		SELECT ` + recordColumns + `
		FROM decision_records
		WHERE subject_id = $1 AND item_id = $2
	`

	rec, err := scanRecord(ps.db.QueryRow(ctx, query, subjectID, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DecisionRecord{}, appErr.NewNotFound("record %s/%s", subjectID, itemID)
		}
		return model.DecisionRecord{}, classify("get record", err)
	}
	return rec, nil
}

func (ps *PostgresStore) PutNew(ctx context.Context, subjectID, itemID, token string, sentAt time.Time) (model.DecisionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// Overwrite semantics: re-issuance replaces the token, resets status to
	// PENDING and clears any prior decision.
	const query = `
		INSERT INTO decision_records (subject_id, item_id, approval_token, status, sent_at, decided_at, comment)
		VALUES ($1, $2, $3, $4, $5, NULL, NULL)
		ON CONFLICT (subject_id, item_id) DO UPDATE
		SET approval_token = EXCLUDED.approval_token,
		    status         = EXCLUDED.status,
		    sent_at        = EXCLUDED.sent_at,
		    decided_at     = NULL,
		    comment        = NULL
	`

	_, err := ps.db.Exec(ctx, query, subjectID, itemID, token, model.StatusPending, sentAt)
	if err != nil {
		return model.DecisionRecord{}, classify("put record", err)
	}

	return model.DecisionRecord{
		SubjectID:     subjectID,
		ItemID:        itemID,
		ApprovalToken: token,
		Status:        model.StatusPending,
		SentAt:        sentAt,
	}, nil
}

func (ps *PostgresStore) Transition(ctx context.Context, subjectID, itemID string, from, to model.Status, decidedAt time.Time, comment string) error {
	if from.Terminal() {
		return appErr.NewConflict("no transition is legal out of terminal state %s", from)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// The status predicate makes this a compare-and-set: of two concurrent
	// transition attempts, the second sees zero rows affected.
	const query = `
		UPDATE decision_records
		SET status = $1, decided_at = $2, comment = $3
		WHERE subject_id = $4 AND item_id = $5 AND status = $6
	`

	tag, err := ps.db.Exec(ctx, query, to, decidedAt, nullableString(comment), subjectID, itemID, from)
	if err != nil {
		return classify("transition record", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows: either the record is gone or its status moved on. Read back
	// to tell the two apart.
	current, err := ps.Get(ctx, subjectID, itemID)
	if err != nil {
		return err
	}
	return appErr.NewConflict("record %s/%s is %s, expected %s", subjectID, itemID, current.Status, from)
}

func (ps *PostgresStore) ScanPendingOlderThan(ctx context.Context, cutoff time.Time, after model.RecordKey, limit int) ([]model.DecisionRecord, error) {
	const query = `
		SELECT ` + recordColumns + `
		FROM decision_records
		WHERE status = $1 AND sent_at <= $2 AND (subject_id, item_id) > ($3, $4)
		ORDER BY subject_id, item_id
		LIMIT $5
	`
	return ps.queryPage(ctx, query, model.StatusPending, cutoff, after.SubjectID, after.ItemID, limit)
}

func (ps *PostgresStore) FindByToken(ctx context.Context, token string) ([]model.DecisionRecord, error) {
	// Served by the unique index on approval_token; LIMIT 2 lets the lookup
	// layer notice a uniqueness anomaly without pulling the table.
	const query = `
		SELECT ` + recordColumns + `
		FROM decision_records
		WHERE approval_token = $1
		LIMIT 2
	`
	return ps.queryPage(ctx, query, token)
}

func (ps *PostgresStore) ScanPage(ctx context.Context, after model.RecordKey, limit int) ([]model.DecisionRecord, error) {
	const query = `
		SELECT ` + recordColumns + `
		FROM decision_records
		WHERE (subject_id, item_id) > ($1, $2)
		ORDER BY subject_id, item_id
		LIMIT $3
	`
	return ps.queryPage(ctx, query, after.SubjectID, after.ItemID, limit)
}

func (ps *PostgresStore) queryPage(ctx context.Context, query string, args ...any) ([]model.DecisionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := ps.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("query records", err)
	}
	defer rows.Close()

	var recs []model.DecisionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, classify("scan record row", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate record rows", err)
	}
	return recs, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// classify maps backend failures onto the app error taxonomy. Connection
// loss, cancellation, throttling and serialization failures are transient
// and eligible for retry; everything else surfaces as-is.
func classify(op string, err error) error {
	if isTransient(err) {
		return appErr.NewTransient("%s: %v", op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.Code
		switch {
		case strings.HasPrefix(code, "08"): // connection exceptions
			return true
		case strings.HasPrefix(code, "53"): // insufficient resources
			return true
		case code == "40001" || code == "40P01": // serialization, deadlock
			return true
		case code == "57014": // query canceled
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
