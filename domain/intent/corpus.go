package intent

import (
	"strconv"

	"chatintent/domain/core"
)

// Corpus is an ordered, append-only collection of samples. Once handed to
// the label space builder it is treated as read-only.
type Corpus struct {
	samples []Sample
}

// NewCorpus copies samples into a new corpus after validating each one.
func NewCorpus(samples []Sample) (*Corpus, error) {
	c := &Corpus{samples: make([]Sample, 0, len(samples))}
	for _, s := range samples {
		if err := c.Append(s); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Append validates and adds a sample.
func (c *Corpus) Append(s Sample) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.samples = append(c.samples, s)
	return nil
}

// Len returns the number of samples.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.samples)
}

// At returns the i-th sample.
func (c *Corpus) At(i int) Sample { return c.samples[i] }

// Samples returns a copy of the samples in generation order.
func (c *Corpus) Samples() []Sample {
	out := make([]Sample, len(c.samples))
	copy(out, c.samples)
	return out
}

// Subset returns the samples at the given indices, in index order given.
func (c *Corpus) Subset(indices []int) []Sample {
	out := make([]Sample, 0, len(indices))
	for _, i := range indices {
		out = append(out, c.samples[i])
	}
	return out
}

// Hash fingerprints the corpus contents, order included.
func (c *Corpus) Hash() core.Hash {
	fields := make([]string, 0, len(c.samples)*3+1)
	fields = append(fields, strconv.Itoa(len(c.samples)))
	for _, s := range c.samples {
		fields = append(fields, s.Text, s.Intent, string(s.UserType))
	}
	return core.HashFields(fields...)
}
