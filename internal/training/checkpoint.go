package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"chatintent/internal/classifier"
	"chatintent/internal/errors"
)

// Checkpoint is a snapshot of the weights taken at the end of an epoch
type Checkpoint struct {
	Epoch   int                 `json:"epoch"`
	Step    int                 `json:"step"`
	Metric  float64             `json:"eval_f1"`
	Weights *classifier.Weights `json:"-"`
}

// Name is the directory name used when checkpoints are persisted.
func (c *Checkpoint) Name() string {
	return fmt.Sprintf("checkpoint-%d", c.Step)
}

// retention keeps the best checkpoint plus the most recent ones, at most
// limit in total. A later checkpoint replaces the best only when strictly
// better, so ties keep the earliest.
type retention struct {
	limit int
	dir   string
	best  *Checkpoint
	kept  []*Checkpoint // oldest first
}

func (r *retention) add(c *Checkpoint) error {
	if r.best == nil || c.Metric > r.best.Metric {
		r.best = c
	}
	r.kept = append(r.kept, c)

	if r.dir != "" {
		if err := r.persist(c); err != nil {
			return err
		}
	}

	keep := map[*Checkpoint]bool{r.best: true}
	for i := len(r.kept) - 1; i >= 0 && len(keep) < r.limit; i-- {
		keep[r.kept[i]] = true
	}

	var next []*Checkpoint
	for _, k := range r.kept {
		if keep[k] {
			next = append(next, k)
			continue
		}
		if r.dir != "" {
			if err := os.RemoveAll(filepath.Join(r.dir, k.Name())); err != nil {
				return errors.Wrapf(err, "failed to prune %s", k.Name())
			}
		}
	}
	r.kept = next
	return nil
}

func (r *retention) persist(c *Checkpoint) error {
	dir := filepath.Join(r.dir, c.Name())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}
	blob, err := c.Weights.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "model.bin"), blob, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", c.Name())
	}
	state, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode checkpoint state")
	}
	if err := os.WriteFile(filepath.Join(dir, "trainer_state.json"), state, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", c.Name())
	}
	return nil
}
