package api

import (
	"text2phenotype.com/genetagger/hmm"
	"text2phenotype.com/genetagger/pipeline"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"io"
	"net/http"
)

const maxBodyBytes = 32 << 20

type Request struct {
	Pipeline pipeline.Pipeline
	Model    *hmm.Model
}

type EmissionResponse struct {
	Word        string  `json:"word"`
	Tag         string  `json:"tag"`
	Probability float64 `json:"probability"`
}

type ModelResponse struct {
	Tags        []string       `json:"tags"`
	RareWord    string         `json:"rare_word"`
	CaseMode    string         `json:"case_mode"`
	TagCounts   map[string]int `json:"tag_counts"`
	Emissions   int            `json:"emissions"`
	Fingerprint string         `json:"fingerprint"`
}

func (req *Request) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/classify", req.ProcessData)
	mux.HandleFunc("/emission", req.Emission)
	mux.HandleFunc("/model", req.ModelInfo)
	return mux
}

// ProcessData tags a newline separated token stream posted as the body.
func (req *Request) ProcessData(w http.ResponseWriter, r *http.Request) {
	logger := makeRequestLogger(r)

	if r.Method != http.MethodPost {
		logger.Err(nil).Int("status", http.StatusMethodNotAllowed).Msg("Only 'POST' method is allowed here")
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	msg, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logger.Err(err).Int("status", http.StatusBadRequest).Msg("Could not read request body")
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	request := pipeline.Request{
		Tid:  uuid.NewString(),
		Text: string(msg),
	}
	logger.Info().Str("tid", request.Tid).Msg("Starting pipeline for request from API")
	result, ok := <-req.Pipeline(request)
	if !ok || result.Err != nil {
		status := http.StatusInternalServerError
		if ok && errors.Is(result.Err, hmm.ErrUnresolvableTag) {
			status = http.StatusUnprocessableEntity
		}
		logger.Err(result.Err).Str("tid", request.Tid).Int("status", status).Msg("Pipeline failed")
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Request-Id", request.Tid)
	_, _ = w.Write([]byte(result.Text))
	logger.Info().Str("tid", request.Tid).Int("status", http.StatusOK).Msg("Finished processing request")
}

// Emission answers e(word, tag) for the loaded model.
func (req *Request) Emission(w http.ResponseWriter, r *http.Request) {
	logger := makeRequestLogger(r)

	if r.Method != http.MethodGet {
		logger.Err(nil).Int("status", http.StatusMethodNotAllowed).Msg("Only 'GET' method is allowed here")
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	word, tag := query.Get("word"), query.Get("tag")
	if len(word) == 0 || len(tag) == 0 {
		logger.Warn().Int("status", http.StatusBadRequest).Msg("Missing word or tag")
		http.Error(w, "word and tag are required", http.StatusBadRequest)
		return
	}

	prob, err := req.Model.E(word, tag)
	if err != nil {
		logger.Err(err).Int("status", http.StatusNotFound).Msg("Could not resolve emission")
		http.Error(w, fmt.Sprintf("tag %q has no emission estimate", tag), http.StatusNotFound)
		return
	}
	writeJSON(w, EmissionResponse{Word: word, Tag: tag, Probability: prob})
}

func (req *Request) ModelInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}
	params := req.Model.Params()
	writeJSON(w, ModelResponse{
		Tags:        params.Tags,
		RareWord:    params.RareWord,
		CaseMode:    params.CaseMode,
		TagCounts:   req.Model.TagCounts,
		Emissions:   len(req.Model.EmissionProbabilities),
		Fingerprint: fmt.Sprintf("%016x", req.Model.Fingerprint()),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		defaultLogger.Err(err).Msg("Failed to write response")
	}
}
