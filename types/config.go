package types

import (
	"text2phenotype.com/genetagger/hmm"
	"text2phenotype.com/genetagger/logger"
	"errors"
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const DefaultCountsFile = "gene-rare.counts"

// Configuration describes one tagger: where its counts live and how the
// model reads and applies them.
type Configuration struct {
	Name       string   `yaml:"-" json:"name"`
	FilePath   string   `yaml:"-" json:"file_path"`
	CountsFile string   `yaml:"counts_file" json:"counts_file"`
	RecordType string   `yaml:"record_type" json:"record_type"`
	RareWord   string   `yaml:"rare_word" json:"rare_word"`
	Tags       []string `yaml:"tags" json:"tags"`
	CaseMode   string   `yaml:"case_mode" json:"case_mode"`
}

func DefaultConfiguration() Configuration {
	params := hmm.DefaultParams()
	tags := make([]string, len(params.Tags))
	copy(tags, params.Tags)
	return Configuration{
		Name:       "default",
		CountsFile: DefaultCountsFile,
		RecordType: params.RecordType,
		RareWord:   params.RareWord,
		Tags:       tags,
		CaseMode:   params.CaseMode,
	}
}

// LoadConfiguration reads a YAML tagger configuration. Keys that are not
// set keep their defaults, and a relative counts_file is resolved against
// the directory of the configuration file.
func LoadConfiguration(filePath string) (Configuration, error) {
	fdlLogger := logger.NewLogger("LoadConfiguration")

	cfg := DefaultConfiguration()
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}

	_, fileName := path.Split(filePath)
	cfg.Name = strings.TrimSuffix(strings.TrimSuffix(fileName, ".yaml"), ".yml")
	cfg.FilePath = filePath
	if len(cfg.CountsFile) > 0 && !filepath.IsAbs(cfg.CountsFile) {
		cfg.CountsFile = filepath.Join(filepath.Dir(filePath), cfg.CountsFile)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration %s: %w", filePath, err)
	}

	fdlLogger.Debug().
		Str("name", cfg.Name).
		Strs("tags", cfg.Tags).
		Str("case_mode", cfg.CaseMode).
		Msg("Loaded configuration")
	return cfg, nil
}

func (cfg Configuration) Validate() error {
	if len(cfg.Tags) == 0 {
		return errors.New("tags must not be empty")
	}
	seen := make(map[string]bool, len(cfg.Tags))
	for _, tag := range cfg.Tags {
		if len(tag) == 0 || strings.ContainsAny(tag, " \t") {
			return fmt.Errorf("bad tag %q", tag)
		}
		if seen[tag] {
			return fmt.Errorf("duplicate tag %q", tag)
		}
		seen[tag] = true
	}
	switch cfg.CaseMode {
	case hmm.CaseExact, hmm.CaseLower, hmm.CaseLegacy:
	default:
		return fmt.Errorf("unknown case_mode %q", cfg.CaseMode)
	}
	if len(cfg.RecordType) == 0 || len(cfg.RareWord) == 0 {
		return errors.New("record_type and rare_word must not be empty")
	}
	return nil
}

func (cfg Configuration) ModelParams() hmm.Params {
	return hmm.Params{
		RecordType: cfg.RecordType,
		RareWord:   cfg.RareWord,
		Tags:       cfg.Tags,
		CaseMode:   cfg.CaseMode,
	}
}
