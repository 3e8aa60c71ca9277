package split

import (
	"math"
	"math/rand"
	"sort"

	"chatintent/domain/intent"
	"chatintent/internal/errors"
)

// Split holds corpus indices for the train and eval partitions. Both are
// sorted ascending and disjoint.
type Split struct {
	Train []int `json:"train"`
	Eval  []int `json:"eval"`
	Stats Stats `json:"stats"`
}

// Stats provides metadata about the partitioning
type Stats struct {
	Total         int                 `json:"total"`
	TrainSize     int                 `json:"train_size"`
	EvalSize      int                 `json:"eval_size"`
	EvalRatio     float64             `json:"eval_ratio"`
	RandomSeed    int64               `json:"random_seed"`
	PerClass      map[string]ClassCut `json:"per_class"`
	PartitionKind string              `json:"partition_kind"`
}

// ClassCut is the train/eval count of one intent.
type ClassCut struct {
	Train int `json:"train"`
	Eval  int `json:"eval"`
}

// Partitioner performs stratified train/eval splits with deterministic seeding
type Partitioner struct {
	randomSeed int64
}

// NewPartitioner creates a partitioner with a specific seed for reproducibility
func NewPartitioner(seed int64) *Partitioner {
	return &Partitioner{randomSeed: seed}
}

// Stratify is shorthand for NewPartitioner(seed).Partition(corpus, labels, fraction).
func Stratify(corpus *intent.Corpus, labels *intent.LabelSpace, fraction float64, seed int64) (*Split, error) {
	return NewPartitioner(seed).Partition(corpus, labels, fraction)
}

// Partition assigns round(fraction*n) samples of every intent to eval, at
// least one and at most n-1, so each intent appears on both sides. Intents
// are visited in label id order with a single seeded stream.
func (p *Partitioner) Partition(corpus *intent.Corpus, labels *intent.LabelSpace, fraction float64) (*Split, error) {
	if !(fraction > 0 && fraction < 1) {
		return nil, errors.Configuration("split_fraction must be in (0,1), got %v", fraction)
	}
	if corpus.Len() == 0 {
		return nil, errors.InsufficientData("corpus is empty")
	}

	strata := make([][]int, labels.NumClasses())
	for i, s := range corpus.Samples() {
		id, ok := labels.ID(s.Intent)
		if !ok {
			return nil, errors.Configuration("sample %d has intent %q outside the label space", i, s.Intent)
		}
		strata[id] = append(strata[id], i)
	}

	stats := Stats{
		Total:         corpus.Len(),
		RandomSeed:    p.randomSeed,
		PerClass:      make(map[string]ClassCut, len(strata)),
		PartitionKind: "stratified",
	}

	rng := rand.New(rand.NewSource(p.randomSeed))
	var train, eval []int
	for id, members := range strata {
		name, _ := labels.Intent(id)
		if len(members) < 2 {
			return nil, errors.InsufficientData("intent %q has %d sample(s); at least 2 are needed to appear in both train and eval", name, len(members))
		}

		evalSize := int(math.Round(float64(len(members)) * fraction))
		if evalSize < 1 {
			evalSize = 1
		}
		if evalSize >= len(members) {
			evalSize = len(members) - 1
		}

		shuffled := make([]int, len(members))
		copy(shuffled, members)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		eval = append(eval, shuffled[:evalSize]...)
		train = append(train, shuffled[evalSize:]...)
		stats.PerClass[name] = ClassCut{Train: len(members) - evalSize, Eval: evalSize}
	}

	sort.Ints(train)
	sort.Ints(eval)
	stats.TrainSize = len(train)
	stats.EvalSize = len(eval)
	stats.EvalRatio = float64(len(eval)) / float64(stats.Total)

	return &Split{Train: train, Eval: eval, Stats: stats}, nil
}
