package txconfig

import "github.com/klingon-exchange/walletstore/internal/reactive"

// DefaultMemoLength is the memo limit of Cosmos SDK chains.
const DefaultMemoLength = 256

// MemoConfig holds the transaction memo.
type MemoConfig struct {
	base

	max  int
	memo string
}

// NewMemoConfig creates a MemoConfig. max <= 0 selects DefaultMemoLength.
func NewMemoConfig(max int) *MemoConfig {
	if max <= 0 {
		max = DefaultMemoLength
	}
	c := &MemoConfig{max: max}
	c.props = reactive.NewComputed(c.compute, &c.inputs)
	return c
}

// SetMemo sets the memo.
func (c *MemoConfig) SetMemo(memo string) {
	c.mu.Lock()
	c.memo = memo
	c.mu.Unlock()
	c.touch()
}

// Memo returns the memo.
func (c *MemoConfig) Memo() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memo
}

func (c *MemoConfig) compute() UIProperties {
	if len(c.Memo()) > c.max {
		return UIProperties{Error: &MemoTooLongError{Max: c.max}}
	}
	return UIProperties{}
}
