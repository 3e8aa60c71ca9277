package run

import (
	"fmt"
	"time"

	"chatintent/domain/core"
	"chatintent/internal/errors"
)

// CodeVersion is stamped into every manifest; override with
// -ldflags "-X chatintent/domain/run.CodeVersion=...".
var CodeVersion = "dev"

// Fingerprint identifies everything that determines a training outcome.
// Two runs with equal fingerprints produce identical models.
type Fingerprint struct {
	CorpusHash     core.Hash `json:"corpus_hash"`
	LabelSpaceHash core.Hash `json:"label_space_hash"`
	ConfigHash     core.Hash `json:"config_hash"`
	Seed           int64     `json:"seed"`
	CodeVersion    string    `json:"code_version"`
	Fingerprint    core.Hash `json:"fingerprint"` // Hash of all above
}

// NewFingerprint creates a fingerprint from determinism parameters
func NewFingerprint(corpusHash, labelSpaceHash, configHash core.Hash, seed int64, codeVersion string) Fingerprint {
	return Fingerprint{
		CorpusHash:     corpusHash,
		LabelSpaceHash: labelSpaceHash,
		ConfigHash:     configHash,
		Seed:           seed,
		CodeVersion:    codeVersion,
		Fingerprint: core.NewHash([]byte(fmt.Sprintf("corpus:%s|labels:%s|config:%s|seed:%d|code:%s",
			corpusHash, labelSpaceHash, configHash, seed, codeVersion))),
	}
}

// Manifest is the record of one training run. It is written into the model
// bundle and the run registry before results are reported.
type Manifest struct {
	RunID       core.RunID  `json:"run_id"`
	Fingerprint Fingerprint `json:"fingerprint"`
	CreatedAt   time.Time   `json:"created_at"`
}

// NewManifest stamps a fresh manifest for runID.
func NewManifest(runID core.RunID, fp Fingerprint) *Manifest {
	return &Manifest{
		RunID:       runID,
		Fingerprint: fp,
		CreatedAt:   time.Now().UTC(),
	}
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return errors.Configuration("run manifest: run_id cannot be empty")
	}
	if m.Fingerprint.CorpusHash.IsEmpty() {
		return errors.Configuration("run manifest: corpus_hash cannot be empty")
	}
	if m.Fingerprint.LabelSpaceHash.IsEmpty() {
		return errors.Configuration("run manifest: label_space_hash cannot be empty")
	}
	if m.Fingerprint.ConfigHash.IsEmpty() {
		return errors.Configuration("run manifest: config_hash cannot be empty")
	}
	if m.Fingerprint.CodeVersion == "" {
		return errors.Configuration("run manifest: code_version cannot be empty")
	}
	return nil
}
