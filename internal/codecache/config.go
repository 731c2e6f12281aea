package codecache

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Byte-size helpers, matching the unit the VM options are documented in.
const (
	KiB int64 = 1024
	MiB       = 1024 * KiB
)

// Config mirrors the VM options CodeManager exposes in the original system.
type Config struct {
	// ReservedBaselineCodeCacheSize is the total size of the baseline
	// semi-space region; each half gets ReservedBaselineCodeCacheSize/2,
	// rounded up to a whole 4096-byte page.
	ReservedBaselineCodeCacheSize int64 `toml:"ReservedBaselineCodeCacheSize"`

	// ReservedOptCodeCacheSize is the size of the append-only optimized
	// region, which is never evicted.
	ReservedOptCodeCacheSize int64 `toml:"ReservedOptCodeCacheSize"`

	// ReservedBootCodeCacheSize sizes the immortal boot region. Nova has no
	// pre-linked boot image the way the original VM does; CodeCache.Allocate
	// never places a bundle here (no Lifespan maps to it), so only
	// package-internal code fills it. The option exists purely to size that
	// reservation.
	ReservedBootCodeCacheSize int64 `toml:"ReservedBootCodeCacheSize"`

	// CodeCacheContentionFrequency forces an eviction every N-th baseline
	// allocation, for exercising the eviction path under low real memory
	// pressure. Zero disables forcing.
	CodeCacheContentionFrequency int `toml:"CodeCacheContentionFrequency"`

	// TraceCodeAllocation logs every bundle allocation at debug level.
	TraceCodeAllocation bool `toml:"TraceCodeAllocation"`

	// VerifyRefMaps is accepted and stored for a future VM's runtime-entry
	// checks to consult; codecache itself does not interpret it.
	VerifyRefMaps bool `toml:"VerifyRefMaps"`
}

// DefaultConfig returns the option defaults.
func DefaultConfig() Config {
	return Config{
		ReservedBaselineCodeCacheSize: 128 * MiB,
		ReservedOptCodeCacheSize:      16 * MiB,
		ReservedBootCodeCacheSize:     1 * MiB,
		CodeCacheContentionFrequency:  0,
	}
}

// LoadConfig reads a TOML file, starting from DefaultConfig and overriding
// whichever fields are present. A missing file yields DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("codecache: read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("codecache: parse config: %w", err)
	}
	return cfg, nil
}

const pageSize = 4096

func alignSize(n int64) int64 {
	if n <= 0 {
		n = pageSize
	}
	return (n + pageSize - 1) &^ (pageSize - 1)
}
