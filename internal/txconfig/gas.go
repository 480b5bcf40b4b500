package txconfig

import (
	"strconv"
	"strings"

	"github.com/klingon-exchange/walletstore/internal/reactive"
)

// GasConfig holds the gas limit of the draft.
type GasConfig struct {
	base

	gas uint64
	raw string
}

// NewGasConfig creates a GasConfig starting at gas.
func NewGasConfig(gas uint64) *GasConfig {
	c := &GasConfig{gas: gas}
	c.props = reactive.NewComputed(c.compute, &c.inputs)
	return c
}

// SetGas sets the limit.
func (c *GasConfig) SetGas(gas uint64) {
	c.mu.Lock()
	c.gas, c.raw = gas, ""
	c.mu.Unlock()
	c.touch()
}

// SetGasString parses a user-entered limit. Unparsable input leaves the
// limit at zero and surfaces an InvalidGasError.
func (c *GasConfig) SetGasString(s string) {
	s = strings.TrimSpace(s)
	gas, err := strconv.ParseUint(s, 10, 64)
	c.mu.Lock()
	if err != nil {
		c.gas, c.raw = 0, s
	} else {
		c.gas, c.raw = gas, ""
	}
	c.mu.Unlock()
	c.touch()
}

// Gas returns the limit, zero when the input is invalid.
func (c *GasConfig) Gas() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gas
}

func (c *GasConfig) compute() UIProperties {
	c.mu.Lock()
	gas, raw := c.gas, c.raw
	c.mu.Unlock()
	if raw != "" {
		return UIProperties{Error: &InvalidGasError{Input: raw}}
	}
	if gas == 0 {
		return UIProperties{Error: &InvalidGasError{}}
	}
	return UIProperties{}
}
