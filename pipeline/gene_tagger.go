package pipeline

import (
	"text2phenotype.com/genetagger/hmm"
	"text2phenotype.com/genetagger/logger"
	"text2phenotype.com/genetagger/utils"
	"strings"
)

// GeneTagger wraps a trained model. The model is only read, so concurrent
// requests share it.
func GeneTagger(model *hmm.Model) Pipeline {
	fdlLogger := logger.NewLogger("Gene tagger pipeline")

	return func(request Request) <-chan Result {
		responseChan := make(chan Result, 1)
		pplnLog := fdlLogger.With().Str("tid", request.Tid).Logger()
		pplnLog.Info().Msg("Started gene tagger pipeline")

		go func() {
			defer close(responseChan)
			result := Result{Tid: request.Tid}
			result.Text, result.Err = classify(model, request.Text)
			if result.Err != nil {
				pplnLog.Err(result.Err).Msg("Gene tagger pipeline failed")
			} else {
				pplnLog.Info().Msg("Finished gene tagger pipeline")
			}
			responseChan <- result
		}()

		return responseChan
	}
}

func classify(model *hmm.Model, text string) (tagged string, err error) {
	defer utils.RecoverWithError(&err)
	var out strings.Builder
	err = model.Classify(strings.NewReader(text), &out)
	return out.String(), err
}
