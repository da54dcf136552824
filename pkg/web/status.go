package web

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sabio/csv-analyst-web/pkg/analyst"
)

// Status texts shown on the upload and analyze views
const (
	msgNoSelection      = "Please select a CSV file first!"
	msgUploading        = "Uploading..."
	msgUploadRejected   = "Upload failed. Please try again."
	msgUploadFailed     = "Error: Upload failed. Please try again."
	msgNoResponse       = "Error: No response from server. Please check your connection."
	msgUploadTimeout    = "Error: Upload timeout. Please try again with a smaller file."
	msgMissingQuestion  = "Please select a dataset and enter a question."
	msgAnalysisFailed   = "Error during analysis."
	msgDatasetsFallback = "Failed to fetch datasets."
)

// uploadSuccessStatus builds "Upload successful! <message> Dataset ID: <id>"
func uploadSuccessStatus(resp *analyst.UploadResponse) string {
	parts := []string{"Upload successful!"}
	if msg := strings.TrimSpace(resp.Message); msg != "" {
		parts = append(parts, msg)
	}
	parts = append(parts, "Dataset ID: "+resp.DatasetID)
	return strings.Join(parts, " ")
}

// uploadErrorStatus maps a failed upload to the text shown to the user
func uploadErrorStatus(err error) string {
	if errors.Is(err, analyst.ErrUnexpectedStatus) {
		return msgUploadRejected
	}

	var apiErr *analyst.Error
	if !errors.As(err, &apiErr) {
		return msgUploadFailed
	}

	switch apiErr.Kind {
	case analyst.KindServer:
		if apiErr.Detail != "" {
			return "Error: " + apiErr.Detail
		}
		return fmt.Sprintf("Error: Server error: %d", apiErr.Status)
	case analyst.KindNetwork:
		return msgNoResponse
	case analyst.KindTimeout:
		return msgUploadTimeout
	default:
		return msgUploadFailed
	}
}

// datasetsErrorStatus maps a failed dataset listing to the only text the
// analyze view shows
func datasetsErrorStatus(err error) string {
	var apiErr *analyst.Error
	if errors.As(err, &apiErr) && apiErr.Kind == analyst.KindServer {
		if apiErr.Detail != "" {
			return "Error: " + apiErr.Detail
		}
		return "Error: " + msgDatasetsFallback
	}

	cause := err
	if apiErr != nil && apiErr.Err != nil {
		cause = apiErr.Err
	}
	return "Error: Error fetching datasets: " + cause.Error()
}

// analysisErrorStatus maps a failed analysis to the notice shown to the user
func analysisErrorStatus(err error) string {
	var apiErr *analyst.Error
	if errors.As(err, &apiErr) && apiErr.Kind == analyst.KindServer {
		detail := apiErr.Detail
		if detail == "" {
			detail = "Unknown error"
		}
		return "Analysis failed: " + detail
	}
	return msgAnalysisFailed
}

// statusClass picks the styling of a status line
func statusClass(status string) string {
	switch {
	case strings.HasPrefix(status, "Error"):
		return "error"
	case strings.Contains(status, "successful"):
		return "success"
	default:
		return "info"
	}
}
