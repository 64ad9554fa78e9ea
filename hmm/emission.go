package hmm

import (
	"fmt"
)

// Estimate rebuilds the emission table from the loaded counts:
// e(word|tag) = count(tag, word) / count(tag).
func (m *Model) Estimate() error {
	probs := make(map[WordTag]float64, len(m.EmissionCounts))
	for key, count := range m.EmissionCounts {
		total := m.TagCounts[key.Tag]
		if total == 0 {
			return fmt.Errorf("%w: %q", ErrEmptyTag, key.Tag)
		}
		probs[WordTag{Word: key.Word, Tag: key.Tag}] = float64(count) / float64(total)
	}
	m.EmissionProbabilities = probs
	return nil
}

// E returns the emission probability of word under tag, falling back to the
// rare word estimate for words never seen with that tag.
func (m *Model) E(word, tag string) (float64, error) {
	if prob, ok := m.EmissionProbabilities[WordTag{Word: word, Tag: tag}]; ok {
		return prob, nil
	}
	if prob, ok := m.EmissionProbabilities[WordTag{Word: m.params.RareWord, Tag: tag}]; ok {
		return prob, nil
	}
	return 0, fmt.Errorf("%w %q: no %s entry", ErrUnresolvableTag, tag, m.params.RareWord)
}
