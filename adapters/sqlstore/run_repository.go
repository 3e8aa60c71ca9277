package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"chatintent/domain/core"
	"chatintent/domain/run"
	"chatintent/internal/errors"
	"chatintent/ports"

	"github.com/jmoiron/sqlx"
)

// RunRepositoryImpl implements RunRepository on sqlx. Queries are written
// with ? placeholders and rebound for the connected driver.
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

type runRow struct {
	ID             string        `db:"id"`
	Fingerprint    string        `db:"fingerprint"`
	CorpusHash     string        `db:"corpus_hash"`
	LabelSpaceHash string        `db:"label_space_hash"`
	ConfigHash     string        `db:"config_hash"`
	Seed           int64         `db:"seed"`
	CodeVersion    string        `db:"code_version"`
	Status         string        `db:"status"`
	BestEpoch      int           `db:"best_epoch"`
	Accuracy       float64       `db:"accuracy"`
	F1             float64       `db:"f1"`
	BundleDir      string        `db:"bundle_dir"`
	ErrorMessage   string        `db:"error_message"`
	CreatedAt      int64         `db:"created_at"`
	FinishedAt     sql.NullInt64 `db:"finished_at"`
}

const runColumns = `id, fingerprint, corpus_hash, label_space_hash, config_hash, seed, code_version,
	status, best_epoch, accuracy, f1, bundle_dir, error_message, created_at, finished_at`

func (row runRow) record() *run.Record {
	rec := &run.Record{
		Manifest: run.Manifest{
			RunID: core.RunID(row.ID),
			Fingerprint: run.Fingerprint{
				CorpusHash:     core.Hash(row.CorpusHash),
				LabelSpaceHash: core.Hash(row.LabelSpaceHash),
				ConfigHash:     core.Hash(row.ConfigHash),
				Seed:           row.Seed,
				CodeVersion:    row.CodeVersion,
				Fingerprint:    core.Hash(row.Fingerprint),
			},
			CreatedAt: time.UnixMilli(row.CreatedAt).UTC(),
		},
		Status:    run.Status(row.Status),
		BestEpoch: row.BestEpoch,
		Accuracy:  row.Accuracy,
		F1:        row.F1,
		BundleDir: row.BundleDir,
		Error:     row.ErrorMessage,
	}
	if row.FinishedAt.Valid {
		t := time.UnixMilli(row.FinishedAt.Int64).UTC()
		rec.FinishedAt = &t
	}
	return rec
}

// Create registers a run in the running state
func (r *RunRepositoryImpl) Create(ctx context.Context, manifest *run.Manifest) error {
	if err := manifest.Validate(); err != nil {
		return err
	}
	fp := manifest.Fingerprint
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO training_runs (id, fingerprint, corpus_hash, label_space_hash, config_hash, seed, code_version, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), manifest.RunID.String(), fp.Fingerprint.String(), fp.CorpusHash.String(), fp.LabelSpaceHash.String(),
		fp.ConfigHash.String(), fp.Seed, fp.CodeVersion, string(run.StatusRunning), manifest.CreatedAt.UnixMilli())
	if err != nil {
		return errors.DatabaseError("failed to create run "+manifest.RunID.String(), err)
	}
	return nil
}

// AddEpochs appends epoch rows to a run in one transaction
func (r *RunRepositoryImpl) AddEpochs(ctx context.Context, runID core.RunID, epochs []run.Epoch) error {
	if len(epochs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO epoch_metrics (run_id, epoch, step, train_loss, eval_loss, accuracy, f1, learning_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return errors.DatabaseError("failed to prepare epoch insert", err)
	}
	defer stmt.Close()

	for _, e := range epochs {
		if _, err := stmt.ExecContext(ctx, runID.String(), e.Epoch, e.Step, e.TrainLoss, e.EvalLoss, e.Accuracy, e.F1, e.LearningRate); err != nil {
			return errors.DatabaseError("failed to insert epoch metrics", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit epoch metrics", err)
	}
	return nil
}

// Finish stores the final outcome of a run
func (r *RunRepositoryImpl) Finish(ctx context.Context, runID core.RunID, outcome run.Outcome) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE training_runs
		SET status = ?, best_epoch = ?, accuracy = ?, f1 = ?, bundle_dir = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`), string(outcome.Status), outcome.BestEpoch, outcome.Accuracy, outcome.F1, outcome.BundleDir, outcome.Error,
		time.Now().UnixMilli(), runID.String())
	if err != nil {
		return errors.DatabaseError("failed to finish run "+runID.String(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("run " + runID.String())
	}
	return nil
}

// Get returns a run with its epochs
func (r *RunRepositoryImpl) Get(ctx context.Context, runID core.RunID) (*run.Record, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+runColumns+` FROM training_runs WHERE id = ?`), runID.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("run " + runID.String())
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to load run "+runID.String(), err)
	}

	rec := row.record()
	err = r.db.SelectContext(ctx, &rec.Epochs, r.db.Rebind(`
		SELECT epoch, step, train_loss, eval_loss, accuracy, f1, learning_rate
		FROM epoch_metrics
		WHERE run_id = ?
		ORDER BY epoch
	`), runID.String())
	if err != nil {
		return nil, errors.DatabaseError("failed to load epochs for run "+runID.String(), err)
	}
	return rec, nil
}

// ListRecent returns runs newest first
func (r *RunRepositoryImpl) ListRecent(ctx context.Context, limit int) ([]*run.Record, error) {
	query := `SELECT ` + runColumns + ` FROM training_runs ORDER BY created_at DESC, id DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}
	records := make([]*run.Record, len(rows))
	for i, row := range rows {
		records[i] = row.record()
	}
	return records, nil
}
