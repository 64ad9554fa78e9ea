package main

import (
	"text2phenotype.com/genetagger/api"
	"text2phenotype.com/genetagger/logger"
	"text2phenotype.com/genetagger/pipeline"
	"text2phenotype.com/genetagger/worker"
	"flag"
	"fmt"
	"github.com/kelseyhightower/envconfig"
	"net/http"
	"os"
	"time"
)

type Config struct {
	ConfigPath    string `envconfig:"GENE_CONFIG_PATH" default:""`
	CountsPath    string `envconfig:"GENE_COUNTS_PATH" default:""`
	CountsS3Key   string `envconfig:"GENE_COUNTS_S3_KEY" default:""`
	RestAPIActive bool   `envconfig:"GENE_REST_API_ACTIVE" default:"false"`
	RestAPIPort   string `envconfig:"GENE_REST_API_PORT" default:"10000"`
	WorkerActive  bool   `envconfig:"GENE_WORKER_ACTIVE" default:"false"`
}

func main() {
	logger.SetupLogging()
	fdlLogger := logger.NewLogger("Main")
	fatalErrLogger := fdlLogger.Fatal().Caller()

	inPath := flag.String("in", "gene.dev", "tokens to classify, one per line")
	outPath := flag.String("out", "gene_dev.p1.out", "destination of the tagged tokens")
	countsPath := flag.String("counts", "", "count file, overrides the configured one")
	serve := flag.Bool("serve", false, "run the REST API and/or RMQ worker instead of tagging a file")
	flag.Parse()

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		fatalErrLogger.Err(err).Msg("Failed to read environment")
		os.Exit(1)
	}
	cfg, err := loadConfiguration(config, *countsPath)
	if err != nil {
		fatalErrLogger.Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	load := getModelLoader(config)

	if !*serve {
		if err = classifyFile(cfg, load, *inPath, *outPath); err != nil {
			fdlLogger.Fatal().Err(err).Str("in", *inPath).Str("out", *outPath).Msg("Tagging failed")
			os.Exit(1)
		}
		fdlLogger.Info().Str("out", *outPath).Msg("Tagging finished")
		return
	}

	if !config.RestAPIActive && !config.WorkerActive {
		fatalErrLogger.Msg("Neither the REST API nor the worker is enabled")
		os.Exit(1)
	}

	model, err := load(cfg)
	if err != nil {
		fatalErrLogger.Err(err).Msg("Failed to load model")
		os.Exit(1)
	}
	ppln := pipeline.GeneTagger(model)

	apiStopped := make(chan error, 1)
	if config.RestAPIActive {
		go func() {
			apiRequest := &api.Request{Pipeline: ppln, Model: model}
			host := fmt.Sprintf(":%s", config.RestAPIPort)
			fdlLogger.Info().Msgf("REST API on %s", host)
			apiStopped <- http.ListenAndServe(host, apiRequest.Routes())
		}()
	}

	if !config.WorkerActive {
		err = <-apiStopped
		fatalErrLogger.Err(err).Msg("REST API stopped with error")
		os.Exit(1)
	}

	fdlLogger.Info().Msg("Start gene tagger worker")
	for {
		rmqWorker, err := worker.New(ppln, model.Fingerprint())
		if err != nil {
			fdlLogger.Fatal().Err(err).Msg("Could not initialize RMQ worker")
			os.Exit(1)
		}
		if err = rmqWorker.StartWorker(); err != nil {
			fdlLogger.Err(err).Msg("Worker returned with error. Launching new in 5 seconds")
			time.Sleep(5 * time.Second)
		}
	}
}
