// Package upload validates CSV files before they are sent to the analysis backend.
package upload

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// MaxFileSize is the largest accepted upload (10 MiB)
const MaxFileSize = 10 << 20

var (
	// ErrNoFile means nothing was selected. It is not a user-facing error.
	ErrNoFile = errors.New("no file selected")
	// ErrNotCSV rejects files whose extension is not .csv
	ErrNotCSV = errors.New("Error: Please select a CSV file.")
	// ErrTooLarge rejects files above MaxFileSize
	ErrTooLarge = errors.New("Error: File size must be less than 10MB.")
)

// Validate checks a candidate file by name and size. Rules apply in order:
// missing file, extension, size.
func Validate(name string, size int64) error {
	if strings.TrimSpace(name) == "" {
		return ErrNoFile
	}

	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return ErrNotCSV
	}

	if size > MaxFileSize {
		return ErrTooLarge
	}

	return nil
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize renders a byte count the way the selection panel shows it,
// e.g. "0 Bytes", "1.5 KB", "5 MB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	const k = 1024
	value := float64(bytes)
	i := 0
	for value >= k && i < len(sizeUnits)-1 {
		value /= k
		i++
	}

	return fmt.Sprintf("%s %s", strconv.FormatFloat(math.Round(value*100)/100, 'f', -1, 64), sizeUnits[i])
}
