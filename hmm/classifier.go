package hmm

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
)

// Classify tags every line of r with its most likely tag and writes
// "<word> <tag>" lines to w. Blank lines are sentence boundaries and are
// written back unchanged. Output is flushed when the input ends or fails.
func (m *Model) Classify(r io.Reader, w io.Writer) (err error) {
	bw := bufio.NewWriter(w)
	defer func() {
		if flushErr := bw.Flush(); err == nil && flushErr != nil {
			err = fmt.Errorf("failed to flush output: %w", flushErr)
		}
	}()

	scanner := newLineScanner(r)
	tokens := 0
	sentences := 0
	for scanner.Scan() {
		word := trimLine(scanner.Text())
		if len(word) == 0 {
			sentences++
			if _, err = bw.WriteString("\n"); err != nil {
				return err
			}
			continue
		}

		var tag string
		if tag, err = m.ClassifyWord(word); err != nil {
			return fmt.Errorf("failed to classify %q: %w", word, err)
		}
		if _, err = bw.WriteString(word + " " + tag + "\n"); err != nil {
			return err
		}
		tokens++
	}
	if err = scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	m.fdlLogger.Debug().
		Int("tokens", tokens).
		Int("sentence_breaks", sentences).
		Msg("Classified input")
	return nil
}

// ClassifyWord picks the tag with the highest emission probability for
// word. Ties keep the earlier tag.
func (m *Model) ClassifyWord(word string) (string, error) {
	maxTag := m.params.Tags[0]
	maxProb := math.SmallestNonzeroFloat64

	lookup := word
	if m.params.CaseMode != CaseExact {
		lookup = strings.ToLower(word)
	}

	for _, tag := range m.params.Tags {
		prob, err := m.E(lookup, tag)
		if err != nil {
			return "", err
		}
		if prob <= maxProb {
			continue
		}
		if m.params.CaseMode == CaseLegacy {
			if prob, err = m.E(word, tag); err != nil {
				return "", err
			}
		}
		maxProb = prob
		maxTag = tag
	}
	return maxTag, nil
}

// trimLine strips ASCII control characters and spaces from both ends. Other
// Unicode spaces belong to the token.
func trimLine(line string) string {
	return strings.TrimFunc(line, func(r rune) bool { return r <= ' ' })
}
