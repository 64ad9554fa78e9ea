package main

import (
	"text2phenotype.com/genetagger/hmm"
	"text2phenotype.com/genetagger/pipeline"
	"text2phenotype.com/genetagger/s3client"
	"text2phenotype.com/genetagger/types"
	"bytes"
	"fmt"
	"os"
)

type modelLoader func(cfg types.Configuration) (*hmm.Model, error)

func loadConfiguration(config Config, countsFlag string) (types.Configuration, error) {
	cfg := types.DefaultConfiguration()
	if len(config.ConfigPath) > 0 {
		var err error
		if cfg, err = types.LoadConfiguration(config.ConfigPath); err != nil {
			return cfg, err
		}
	}
	switch {
	case len(countsFlag) > 0:
		cfg.CountsFile = countsFlag
	case len(config.CountsPath) > 0:
		cfg.CountsFile = config.CountsPath
	}
	return cfg, nil
}

func getModelLoader(config Config) modelLoader {
	if len(config.CountsS3Key) == 0 {
		return pipeline.LoadModel
	}
	return func(cfg types.Configuration) (*hmm.Model, error) {
		client, err := s3client.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 client: %w", err)
		}
		data, err := client.Download(config.CountsS3Key)
		if err != nil {
			return nil, fmt.Errorf("failed to download counts %s: %w", config.CountsS3Key, err)
		}
		cfg.CountsFile = config.CountsS3Key
		return pipeline.TrainModel(cfg, bytes.NewReader(data))
	}
}

// classifyFile creates the output before the model is loaded, so the output
// is released on every path, load failures included.
func classifyFile(cfg types.Configuration, load modelLoader, inPath string, outPath string) (err error) {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", outPath, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	model, err := load(cfg)
	if err != nil {
		return err
	}

	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("failed to open input file %s: %w", inPath, err)
	}
	defer in.Close()

	return model.Classify(in, out)
}
