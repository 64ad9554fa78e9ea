package pipeline

type Request struct {
	Text string `json:"text"`
	Tid  string `json:"tid"`
}

type Result struct {
	Tid  string `json:"tid"`
	Text string `json:"text"`
	Err  error  `json:"-"`
}

// Pipeline runs a request asynchronously and sends exactly one Result.
type Pipeline func(request Request) <-chan Result
