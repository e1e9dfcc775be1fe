package nativebind

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvLibrary overrides Config.Library when set.
const EnvLibrary = "NATIVEBIND_LIB"

// Config drives the demo program. Every field has a default, so an empty or
// missing file reproduces the stock demo.
type Config struct {
	// Library is the path of the native module.
	Library string `yaml:"library" validate:"required"`

	// Symbols renames the module's entry points.
	Symbols Symbols `yaml:"symbols"`

	// Workers is the pool degree.
	Workers int `yaml:"workers" validate:"min=1,max=256"`

	// Mode is "process" or "goroutine".
	Mode Mode `yaml:"mode" validate:"oneof=process goroutine"`

	// Seeds are the integers each worker round-trips.
	Seeds []int32 `yaml:"seeds" validate:"required,min=1"`

	// DelayUnit is the wait for seed 0; seed s waits DelayUnit/(1+s).
	DelayUnit time.Duration `yaml:"delay_unit" validate:"min=0"`

	// Record holds the scalars passed to the record builder.
	Record RecordConfig `yaml:"record"`

	// Array configures the array hand-off.
	Array ArrayConfig `yaml:"array"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log"`
}

// RecordConfig holds the builder inputs.
type RecordConfig struct {
	Buzz    float64 `yaml:"buzz"`
	Broken  float64 `yaml:"broken"`
	HowMany int32   `yaml:"how_many"`
}

// ArrayConfig describes the random array handed to the module.
type ArrayConfig struct {
	// Length is the element count.
	Length int `yaml:"length" validate:"min=0,max=1048576"`

	// Precision is the number of fractional digits printed on the Go side.
	Precision int `yaml:"precision" validate:"min=0,max=17"`

	// Guard places the array against an inaccessible page so an overrun by
	// the module faults.
	Guard bool `yaml:"guard"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// DefaultConfig returns the configuration of the stock demo.
func DefaultConfig() Config {
	return Config{
		Library:   "lib/libexample.so",
		Symbols:   DefaultSymbols(),
		Workers:   DefaultWorkers,
		Mode:      ModeProcess,
		Seeds:     []int32{0, 1, 2, 3},
		DelayUnit: time.Second,
		Record: RecordConfig{
			Buzz:    1.25,
			Broken:  5.0,
			HowMany: 1337,
		},
		Array: ArrayConfig{
			Length:    10,
			Precision: 3,
			Guard:     true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads a YAML file over the defaults. An empty path yields the
// defaults. NATIVEBIND_LIB, when set, replaces the library path. The result is
// validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("nativebind: read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("nativebind: parse config %s: %w", path, err)
		}
	}
	if lib := os.Getenv(EnvLibrary); lib != "" {
		cfg.Library = lib
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("nativebind: invalid config: %w", err)
	}
	return nil
}
