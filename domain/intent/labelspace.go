package intent

import (
	"encoding/json"
	"sort"
	"strconv"

	"chatintent/domain/core"
	"chatintent/internal/errors"
)

// LabelSpace is the bijection between intent names and dense class ids.
// Ids follow lexicographic order of the intent names.
type LabelSpace struct {
	intents []string
	index   map[string]int
}

// BuildLabelSpace derives the label space from a corpus. The result depends
// only on the set of intents present, not on the order they were generated in.
func BuildLabelSpace(corpus *Corpus) (*LabelSpace, error) {
	if corpus.Len() == 0 {
		return nil, errors.Configuration("cannot build label space from an empty corpus")
	}

	distinct := make(map[string]struct{})
	for _, s := range corpus.samples {
		distinct[s.Intent] = struct{}{}
	}
	intents := make([]string, 0, len(distinct))
	for name := range distinct {
		intents = append(intents, name)
	}
	return NewLabelSpace(intents)
}

// NewLabelSpace builds a label space from intent names (any order, no duplicates).
func NewLabelSpace(intents []string) (*LabelSpace, error) {
	if len(intents) < 2 {
		return nil, errors.Configuration("a classifier needs at least 2 intents, got %d", len(intents))
	}

	sorted := make([]string, len(intents))
	copy(sorted, intents)
	sort.Strings(sorted)

	ls := &LabelSpace{intents: sorted, index: make(map[string]int, len(sorted))}
	aliases := make(map[string]string, len(sorted))
	for id, name := range sorted {
		if _, dup := ls.index[name]; dup {
			return nil, errors.Configuration("duplicate intent %q", name)
		}
		norm := normalizeName(name)
		if prev, clash := aliases[norm]; clash {
			return nil, errors.Configuration("intents %q and %q differ only by case or whitespace", prev, name)
		}
		aliases[norm] = name
		ls.index[name] = id
	}
	return ls, nil
}

// NumClasses returns the number of intents.
func (ls *LabelSpace) NumClasses() int { return len(ls.intents) }

// ID returns the class id of an intent.
func (ls *LabelSpace) ID(intent string) (int, bool) {
	id, ok := ls.index[intent]
	return id, ok
}

// Intent returns the intent name of a class id.
func (ls *LabelSpace) Intent(id int) (string, bool) {
	if id < 0 || id >= len(ls.intents) {
		return "", false
	}
	return ls.intents[id], true
}

// Intents returns the intent names in id order.
func (ls *LabelSpace) Intents() []string {
	out := make([]string, len(ls.intents))
	copy(out, ls.intents)
	return out
}

// IntentToID returns a copy of the name → id mapping.
func (ls *LabelSpace) IntentToID() map[string]int {
	out := make(map[string]int, len(ls.index))
	for k, v := range ls.index {
		out[k] = v
	}
	return out
}

// IDToIntent returns the id → name mapping keyed by decimal id strings, the
// shape JSON object keys take.
func (ls *LabelSpace) IDToIntent() map[string]string {
	out := make(map[string]string, len(ls.intents))
	for id, name := range ls.intents {
		out[strconv.Itoa(id)] = name
	}
	return out
}

// Hash fingerprints the ordered intent list.
func (ls *LabelSpace) Hash() core.Hash {
	return core.HashFields(ls.intents...)
}

// modelConfig is the on-disk label mapping; exactly these four keys.
type modelConfig struct {
	IntentToID map[string]int    `json:"intent_to_id"`
	IDToIntent map[string]string `json:"id_to_intent"`
	Intents    []string          `json:"intents"`
	NumClasses int               `json:"num_classes"`
}

// MarshalJSON writes {intent_to_id, id_to_intent, intents, num_classes}.
func (ls *LabelSpace) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelConfig{
		IntentToID: ls.IntentToID(),
		IDToIntent: ls.IDToIntent(),
		Intents:    ls.Intents(),
		NumClasses: ls.NumClasses(),
	})
}

// UnmarshalJSON reads a model_config record and checks every view of the
// mapping agrees.
func (ls *LabelSpace) UnmarshalJSON(data []byte) error {
	var raw modelConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(errors.WithCode(errors.CodeConfiguration, err), "failed to decode model_config")
	}

	built, err := NewLabelSpace(raw.Intents)
	if err != nil {
		return err
	}
	if raw.NumClasses != built.NumClasses() {
		return errors.Configuration("model_config num_classes=%d but %d intents listed", raw.NumClasses, built.NumClasses())
	}
	if len(raw.IntentToID) != built.NumClasses() || len(raw.IDToIntent) != built.NumClasses() {
		return errors.Configuration("model_config mappings do not cover all %d intents", built.NumClasses())
	}
	for id, name := range built.intents {
		if got, ok := raw.IntentToID[name]; !ok || got != id {
			return errors.Configuration("model_config intent_to_id[%q]=%d, want %d", name, got, id)
		}
		if got := raw.IDToIntent[strconv.Itoa(id)]; got != name {
			return errors.Configuration("model_config id_to_intent[%d]=%q, want %q", id, got, name)
		}
	}

	*ls = *built
	return nil
}
