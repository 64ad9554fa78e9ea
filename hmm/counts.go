package hmm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const maxLineSize = 1024 * 1024

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return scanner
}

// LoadCounts reads "<count> <record-type> <tag> <word>" lines and
// accumulates the records of the configured type. Other record types are
// skipped. The emission table is re-estimated once the source is exhausted.
func (m *Model) LoadCounts(r io.Reader) error {
	scanner := newLineScanner(r)

	lineNumber := 0
	records := 0
	for scanner.Scan() {
		lineNumber++
		fields := strings.Fields(scanner.Text())
		if !m.isRecord(fields) {
			continue
		}
		freq, tag, word, err := m.parseRecord(fields)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNumber, err)
		}
		m.EmissionCounts[TagWord{Tag: tag, Word: word}] += freq
		m.TagCounts[tag] += freq
		records++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read counts: %w", err)
	}

	m.fdlLogger.Info().
		Int("records", records).
		Int("lines", lineNumber).
		Int("tags", len(m.TagCounts)).
		Msg("Loaded emission counts")
	if err := m.Estimate(); err != nil {
		return err
	}
	for _, tag := range m.params.Tags {
		if _, ok := m.EmissionProbabilities[WordTag{Word: m.params.RareWord, Tag: tag}]; !ok {
			m.fdlLogger.Warn().
				Str("tag", tag).
				Str("rare_word", m.params.RareWord).
				Msg("Tag has no rare word estimate, lookups of unseen words will fail")
		}
	}
	return nil
}

func (m *Model) LoadCountsFile(filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open counts file %s: %w", filePath, err)
	}
	defer f.Close()

	return m.LoadCounts(f)
}

// Train loads counts and estimates the emission table.
func (m *Model) Train(r io.Reader) error {
	if err := m.LoadCounts(r); err != nil {
		return err
	}
	return m.Estimate()
}

// isRecord reports whether the line belongs to the configured record type.
// A marker in the first column still counts, so a record with its
// frequency missing is reported instead of skipped.
func (m *Model) isRecord(fields []string) bool {
	for i := 0; i < len(fields) && i < 2; i++ {
		if fields[i] == m.params.RecordType {
			return true
		}
	}
	return false
}

func (m *Model) parseRecord(fields []string) (int, string, string, error) {
	if len(fields) < 4 || fields[1] != m.params.RecordType {
		return 0, "", "", fmt.Errorf("%w: expected \"<count> %s <tag> <word>\", got %q",
			ErrMalformedRecord, m.params.RecordType, strings.Join(fields, " "))
	}
	freq, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", "", fmt.Errorf("%w: bad frequency %q", ErrMalformedRecord, fields[0])
	}
	if freq < 0 {
		return 0, "", "", fmt.Errorf("%w: negative frequency %d", ErrMalformedRecord, freq)
	}
	return freq, fields[2], fields[3], nil
}
