package narrative

import (
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many model tokens a text will cost.
type TokenCounter interface {
	Count(text string) int
}

// EstimatedCounter approximates token counts from character length. It is
// the default: cheap, deterministic, and calibrated for English prose.
type EstimatedCounter struct {
	// CharsPerToken is the average character count per token.
	CharsPerToken float64
}

// NewEstimatedCounter returns a counter with the given calibration, falling
// back to 4 characters per token for non-positive values.
func NewEstimatedCounter(charsPerToken float64) *EstimatedCounter {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	return &EstimatedCounter{CharsPerToken: charsPerToken}
}

// Count returns the estimated token count.
func (c *EstimatedCounter) Count(text string) int {
	return int(float64(len(text)) / c.CharsPerToken)
}

// TiktokenCounter counts tokens exactly with a tiktoken encoding. Building
// one is comparatively expensive; share a single instance.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for the given model, degrading to the
// cl100k_base encoding when the model is unknown.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &TiktokenCounter{encoding: encoding}, nil
}

// Count returns the exact token count under the configured encoding.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

var (
	_ TokenCounter = (*EstimatedCounter)(nil)
	_ TokenCounter = (*TiktokenCounter)(nil)
)
