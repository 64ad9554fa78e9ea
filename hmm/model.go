package hmm

import (
	"text2phenotype.com/genetagger/logger"
	"text2phenotype.com/genetagger/utils"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"sort"
	"strings"
)

const (
	WordTagRecord = "WORDTAG"
	RareWord      = "_RARE_"

	TagOutside = "O"
	TagGene    = "I-GENE"
)

const (
	// CaseExact looks words up exactly as they were read.
	CaseExact = "exact"
	// CaseLower looks words up lowercased.
	CaseLower = "lower"
	// CaseLegacy compares lowercased lookups but keeps the original-case
	// probability as the running maximum.
	CaseLegacy = "legacy"
)

var (
	ErrMalformedRecord = errors.New("malformed count record")
	ErrUnresolvableTag = errors.New("no emission estimate for tag")
	ErrEmptyTag        = errors.New("tag has zero total count")
)

// DefaultTags is the closed tag set in tie-break order.
var DefaultTags = []string{TagOutside, TagGene}

type TagWord struct {
	Tag  string
	Word string
}

type WordTag struct {
	Word string
	Tag  string
}

type Params struct {
	RecordType string
	RareWord   string
	Tags       []string
	CaseMode   string
}

func DefaultParams() Params {
	return Params{
		RecordType: WordTagRecord,
		RareWord:   RareWord,
		Tags:       DefaultTags,
		CaseMode:   CaseExact,
	}
}

// Model owns the counts and the emission table derived from them.
// It is not safe to load counts concurrently; once trained it is read-only.
type Model struct {
	TagCounts             map[string]int
	EmissionCounts        map[TagWord]int
	EmissionProbabilities map[WordTag]float64

	params    Params
	fdlLogger *zerolog.Logger
}

func New(params Params) (*Model, error) {
	if len(params.RecordType) == 0 {
		params.RecordType = WordTagRecord
	}
	if len(params.RareWord) == 0 {
		params.RareWord = RareWord
	}
	if len(params.Tags) == 0 {
		params.Tags = DefaultTags
	}
	params.Tags = append([]string(nil), params.Tags...)
	switch params.CaseMode {
	case "":
		params.CaseMode = CaseExact
	case CaseExact, CaseLower, CaseLegacy:
	default:
		return nil, fmt.Errorf("unknown case mode %q", params.CaseMode)
	}

	fdlLogger := logger.NewLogger("HMM")
	return &Model{
		TagCounts:             make(map[string]int),
		EmissionCounts:        make(map[TagWord]int),
		EmissionProbabilities: make(map[WordTag]float64),
		params:                params,
		fdlLogger:             &fdlLogger,
	}, nil
}

func (m *Model) Tags() []string {
	tags := make([]string, len(m.params.Tags))
	copy(tags, m.params.Tags)
	return tags
}

func (m *Model) Params() Params {
	params := m.params
	params.Tags = m.Tags()
	return params
}

// Fingerprint hashes the emission counts independently of the order in
// which they were read.
func (m *Model) Fingerprint() uint64 {
	lines := make([]string, 0, len(m.EmissionCounts))
	for key, count := range m.EmissionCounts {
		lines = append(lines, fmt.Sprintf("%d %s %s", count, key.Tag, key.Word))
	}
	sort.Strings(lines)
	return utils.HashString(strings.Join(lines, "\n"))
}
