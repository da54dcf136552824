package analyst

import "encoding/json"

// DatasetRef names a previously uploaded CSV
type DatasetRef struct {
	ID       string `json:"_id"`
	Filename string `json:"filename"`
}

// UploadResponse is returned by the backend after a successful upload
type UploadResponse struct {
	Status    string `json:"status,omitempty"`
	DatasetID string `json:"dataset_id"`
	Filename  string `json:"filename"`
	Message   string `json:"message,omitempty"`
}

// Result is the structured answer to an analysis question. The chart
// specification is kept raw so the renderer can tell objects, strings and
// nulls apart.
type Result struct {
	ChartSpecification json.RawMessage `json:"chart_specification,omitempty"`
	ChartImage         string          `json:"chart_image,omitempty"`
	FinalAnswer        string          `json:"final_answer,omitempty"`
	Error              string          `json:"error,omitempty"`
	Debug              string          `json:"debug,omitempty"`
}

// HasChartSpecification reports whether the result carries a non-null
// chart specification
func (r *Result) HasChartSpecification() bool {
	if r == nil || len(r.ChartSpecification) == 0 {
		return false
	}
	return string(r.ChartSpecification) != "null"
}

type datasetList struct {
	Datasets []DatasetRef `json:"datasets"`
}

// errorBody covers both FastAPI ("detail") and generic ("message") error payloads
type errorBody struct {
	Detail  interface{} `json:"detail"`
	Message string      `json:"message"`
}
