package web

import (
	"sync"
)

// Default history limits
const (
	DefaultMaxQuestions  = 10   // Maximum number of questions to retain
	DefaultMaxCharacters = 4000 // Maximum total characters
)

// HistoryConfig holds configuration for question history limits
type HistoryConfig struct {
	MaxQuestions  int // Maximum number of questions (0 = default, <0 = unlimited)
	MaxCharacters int // Maximum total characters (0 = default, <0 = unlimited)
}

// Question is one analysis request made from a view
type Question struct {
	DatasetID string `json:"dataset_id"`
	Text      string `json:"text"`
}

// History stores the recent questions asked from a view
type History struct {
	questions     []Question
	totalChars    int
	maxQuestions  int
	maxCharacters int
	mu            sync.RWMutex
}

// NewHistory creates a new history with default limits
func NewHistory() *History {
	return NewHistoryWithConfig(HistoryConfig{
		MaxQuestions:  DefaultMaxQuestions,
		MaxCharacters: DefaultMaxCharacters,
	})
}

// NewHistoryWithConfig creates a new history with custom limits
func NewHistoryWithConfig(config HistoryConfig) *History {
	if config.MaxQuestions == 0 {
		config.MaxQuestions = DefaultMaxQuestions
	}
	if config.MaxCharacters == 0 {
		config.MaxCharacters = DefaultMaxCharacters
	}

	return &History{
		questions:     make([]Question, 0),
		maxQuestions:  config.MaxQuestions,
		maxCharacters: config.MaxCharacters,
	}
}

// Add records a question. Asking the same question about the same dataset
// again moves it to the front instead of duplicating it.
func (h *History) Add(datasetID, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, q := range h.questions {
		if q.DatasetID == datasetID && q.Text == text {
			h.questions = append(h.questions[:i], h.questions[i+1:]...)
			h.totalChars -= len(q.Text)
			break
		}
	}

	h.questions = append(h.questions, Question{DatasetID: datasetID, Text: text})
	h.totalChars += len(text)

	h.trimToQuestionLimit()
	h.trimToCharacterLimit()
}

// trimToQuestionLimit removes the oldest questions over the count limit
// Must be called with lock held
func (h *History) trimToQuestionLimit() {
	if h.maxQuestions <= 0 {
		return
	}

	for len(h.questions) > h.maxQuestions {
		h.totalChars -= len(h.questions[0].Text)
		h.questions = h.questions[1:]
	}
}

// trimToCharacterLimit removes the oldest questions over the character limit
// Must be called with lock held
func (h *History) trimToCharacterLimit() {
	if h.maxCharacters <= 0 {
		return
	}

	// Keep at least one question even if it exceeds the limit
	for h.totalChars > h.maxCharacters && len(h.questions) > 1 {
		h.totalChars -= len(h.questions[0].Text)
		h.questions = h.questions[1:]
	}
}

// Recent returns the questions, newest first
func (h *History) Recent() []Question {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Question, len(h.questions))
	for i, q := range h.questions {
		result[len(h.questions)-1-i] = q
	}
	return result
}

// len returns the number of stored questions
func (h *History) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.questions)
}
