package corpus

import (
	"sort"

	"chatintent/domain/intent"

	"github.com/montanaflynn/stats"
)

// Summary describes the class balance of a corpus
type Summary struct {
	Total          int            `json:"total"`
	Intents        int            `json:"intents"`
	PerIntent      map[string]int `json:"per_intent"`
	PerUserType    map[string]int `json:"per_user_type"`
	Min            float64        `json:"min"`
	Max            float64        `json:"max"`
	Mean           float64        `json:"mean"`
	StdDev         float64        `json:"std_dev"`
	ImbalanceRatio float64        `json:"imbalance_ratio"` // max / min
}

// Summarize counts samples per intent and describes their spread
func Summarize(c *intent.Corpus) (Summary, error) {
	s := Summary{
		Total:       c.Len(),
		PerIntent:   make(map[string]int),
		PerUserType: make(map[string]int),
	}
	for _, sample := range c.Samples() {
		s.PerIntent[sample.Intent]++
		s.PerUserType[string(sample.UserType)]++
	}
	s.Intents = len(s.PerIntent)
	if s.Intents == 0 {
		return s, nil
	}

	names := make([]string, 0, len(s.PerIntent))
	for name := range s.PerIntent {
		names = append(names, name)
	}
	sort.Strings(names)
	counts := make(stats.Float64Data, 0, len(names))
	for _, name := range names {
		counts = append(counts, float64(s.PerIntent[name]))
	}

	var err error
	if s.Min, err = counts.Min(); err != nil {
		return s, err
	}
	if s.Max, err = counts.Max(); err != nil {
		return s, err
	}
	if s.Mean, err = counts.Mean(); err != nil {
		return s, err
	}
	if s.StdDev, err = counts.StandardDeviation(); err != nil {
		return s, err
	}
	if s.Min > 0 {
		s.ImbalanceRatio = s.Max / s.Min
	}
	return s, nil
}
