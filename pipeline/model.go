package pipeline

import (
	"text2phenotype.com/genetagger/hmm"
	"text2phenotype.com/genetagger/logger"
	"text2phenotype.com/genetagger/types"
	"fmt"
	"io"
)

// TrainModel builds the emission model described by cfg from counts.
func TrainModel(cfg types.Configuration, counts io.Reader) (*hmm.Model, error) {
	return buildModel(cfg, func(model *hmm.Model) error {
		return model.Train(counts)
	})
}

// LoadModel trains the model from the counts file named by cfg.
func LoadModel(cfg types.Configuration) (*hmm.Model, error) {
	return buildModel(cfg, func(model *hmm.Model) error {
		return model.LoadCountsFile(cfg.CountsFile)
	})
}

func buildModel(cfg types.Configuration, load func(model *hmm.Model) error) (*hmm.Model, error) {
	fdlLogger := logger.NewLogger("Model loader")
	errLogger := fdlLogger.With().Caller().Logger()

	model, err := hmm.New(cfg.ModelParams())
	if err != nil {
		errLogger.Err(err).Interface("configuration", cfg).Msg("Failed to create model")
		return nil, err
	}
	if err = load(model); err != nil {
		errLogger.Err(err).
			Str("config_name", cfg.Name).
			Str("counts_file", cfg.CountsFile).
			Msg("Failed to train model")
		return nil, err
	}

	fdlLogger.Info().
		Str("config_name", cfg.Name).
		Strs("tags", model.Tags()).
		Int("emissions", len(model.EmissionProbabilities)).
		Str("fingerprint", fmt.Sprintf("%016x", model.Fingerprint())).
		Msg("Model trained")
	return model, nil
}
