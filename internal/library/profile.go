package library

import (
	_ "embed"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wesleyorama2/libload/internal/performance/config"
	"github.com/wesleyorama2/libload/internal/performance/engine"
)

//go:embed profile.yaml
var defaultProfile []byte

//go:embed load_test.yaml
var loadTestProfile []byte

// Built-in profile names.
const (
	ProfileDefault  = "default"
	ProfileLoadTest = "load-test"
)

var builtinProfiles = map[string][]byte{
	ProfileDefault:  defaultProfile,
	ProfileLoadTest: loadTestProfile,
}

// DefaultProfile returns the raw YAML of the built-in load profile.
func DefaultProfile() []byte {
	return append([]byte(nil), defaultProfile...)
}

// DefaultConfig parses the built-in load profile: register_author and
// add_book at a constant rate, update_book on a ramp, and three read
// scenarios on fixed iteration counts.
func DefaultConfig() (*config.TestConfig, error) {
	return config.ParseConfig(defaultProfile, "profile.yaml")
}

// LoadTestConfig parses the single-scenario soak profile: 10 VUs adding
// books for 5 seeded authors for 30s, pausing 1s between iterations.
func LoadTestConfig() (*config.TestConfig, error) {
	return config.ParseConfig(loadTestProfile, "load_test.yaml")
}

// BuiltinConfig parses the built-in profile called name.
func BuiltinConfig(name string) (*config.TestConfig, error) {
	data, ok := builtinProfiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown built-in profile %q (want one of %v)", name, BuiltinProfiles())
	}
	return config.ParseConfig(data, name+".yaml")
}

// BuiltinProfiles lists the names accepted by BuiltinConfig.
func BuiltinProfiles() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EngineOptions binds cfg to the library workload: iteration bodies from
// Execs and the seeding stage from cfg.Setup. ApplyDefaults should have been
// called on cfg.
func EngineOptions(cfg *config.TestConfig, logger *zap.Logger) (engine.Options, error) {
	opts, err := cfg.Options(Execs())
	if err != nil {
		return engine.Options{}, err
	}

	opts.Setup = Setup(SetupOptions{
		Authors:     cfg.Setup.Authors,
		Concurrency: cfg.Setup.Concurrency,
		Logger:      logger,
	})
	opts.Logger = logger
	return opts, nil
}
