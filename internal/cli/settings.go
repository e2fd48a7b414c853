package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wesleyorama2/libload/internal/library"
	"github.com/wesleyorama2/libload/internal/performance/config"
)

const (
	envBaseURL = "BASE_URL"
	envConfig  = "LIBLOAD_CONFIG"
)

// addProfileFlags registers the flags that select and adjust a load profile.
func addProfileFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "Load profile (YAML or JSON); default is the built-in profile")
	cmd.Flags().String("profile", library.ProfileDefault, fmt.Sprintf("Built-in profile used without --config %v", library.BuiltinProfiles()))
	cmd.Flags().String("base-url", "", "Base URL of the library service (env "+envBaseURL+")")
}

// loadTestConfig reads the profile named by --config or the built-in one
// named by --profile, then layers BASE_URL and --base-url over
// settings.baseUrl. A flag beats the environment, which beats the file.
func loadTestConfig(cmd *cobra.Command) (*config.TestConfig, error) {
	v := viper.New()
	if err := v.BindEnv("config", envConfig); err != nil {
		return nil, err
	}
	if err := v.BindEnv("base-url", envBaseURL); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("config", cmd.Flags().Lookup("config")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("base-url", cmd.Flags().Lookup("base-url")); err != nil {
		return nil, err
	}

	var (
		cfg *config.TestConfig
		err error
	)
	if path := v.GetString("config"); path != "" {
		cfg, err = config.LoadConfig(path)
	} else {
		profile, _ := cmd.Flags().GetString("profile")
		cfg, err = library.BuiltinConfig(profile)
	}
	if err != nil {
		return nil, err
	}

	if baseURL := v.GetString("base-url"); baseURL != "" {
		cfg.Settings.BaseURL = baseURL
	}
	config.ApplyDefaults(cfg)
	return cfg, nil
}

// newLogger builds a development logger when verbose, otherwise a JSON
// production logger that only reports warnings and errors.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func displayName(cfg *config.TestConfig) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return "libload"
}
