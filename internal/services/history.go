package services

import (
	"fmt"
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	// Offline loader, so no network fetch of the BPE files at runtime.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// DefaultHistoryBudget caps the token count of the previous_messages window
// sent with each chat request.
const DefaultHistoryBudget = 3000

// turnOverheadTokens approximates the framing cost of one history turn
// (role tag and separators) on top of its content tokens.
const turnOverheadTokens = 4

var (
	encodingInstance *tiktoken.Tiktoken
	encodingOnce     sync.Once
	encodingErr      error
)

// getEncoding loads the cl100k_base encoding once per process.
func getEncoding() (*tiktoken.Tiktoken, error) {
	encodingOnce.Do(func() {
		encodingInstance, encodingErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encodingInstance, encodingErr
}

// HistoryBudget trims the prior-exchange window sent to the backend so its
// combined token count stays under a fixed limit. The newest turns win.
type HistoryBudget struct {
	encoding  *tiktoken.Tiktoken
	maxTokens int
	logger    *log.Logger
}

// NewHistoryBudget creates a budget with the given token limit.
func NewHistoryBudget(maxTokens int, logger *log.Logger) (*HistoryBudget, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultHistoryBudget
	}
	if logger == nil {
		logger = log.Default()
	}
	enc, err := getEncoding()
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding: %w", err)
	}
	return &HistoryBudget{encoding: enc, maxTokens: maxTokens, logger: logger}, nil
}

// CountTokens returns the token count of a single text.
func (b *HistoryBudget) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(b.encoding.Encode(text, nil, nil))
}

// Window returns the longest suffix of turns that fits the budget, in the
// original order. Older turns are dropped first.
func (b *HistoryBudget) Window(turns []ChatTurn) []ChatTurn {
	total := 0
	cut := 0
	for i := len(turns) - 1; i >= 0; i-- {
		n := b.CountTokens(turns[i].Content) + turnOverheadTokens
		if total+n > b.maxTokens {
			cut = i + 1
			break
		}
		total += n
	}

	kept := turns[cut:]
	if cut > 0 {
		b.logger.Printf("Trimmed chat history from %d to %d turns (%d tokens)", len(turns), len(kept), total)
	}
	return kept
}
