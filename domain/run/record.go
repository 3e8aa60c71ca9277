package run

import (
	"time"

	"chatintent/domain/core"
)

// Status is the lifecycle state of a registered run
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Epoch is the per-epoch row stored in the run registry
type Epoch struct {
	Epoch        int     `json:"epoch" db:"epoch"`
	Step         int     `json:"step" db:"step"`
	TrainLoss    float64 `json:"train_loss" db:"train_loss"`
	EvalLoss     float64 `json:"eval_loss" db:"eval_loss"`
	Accuracy     float64 `json:"accuracy" db:"accuracy"`
	F1           float64 `json:"f1" db:"f1"`
	LearningRate float64 `json:"learning_rate" db:"learning_rate"`
}

// Outcome is what a finished run reports back to the registry
type Outcome struct {
	Status    Status
	BestEpoch int
	Accuracy  float64
	F1        float64
	BundleDir string
	Error     string
}

// Record is a registered run with its outcome and epoch history
type Record struct {
	Manifest   Manifest   `json:"manifest"`
	Status     Status     `json:"status"`
	BestEpoch  int        `json:"best_epoch"`
	Accuracy   float64    `json:"accuracy"`
	F1         float64    `json:"f1"`
	BundleDir  string     `json:"bundle_dir,omitempty"`
	Error      string     `json:"error,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Epochs     []Epoch    `json:"epochs,omitempty"`
}

// ID returns the run id
func (r *Record) ID() core.RunID { return r.Manifest.RunID }

// Terminal reports whether the run has finished either way
func (r *Record) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}
