package plugin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Args represents the plugin's configurable arguments.
type Args struct {
	ReportPath        string `envconfig:"PLUGIN_REPORT_PATH"`
	ConfigPath        string `envconfig:"PLUGIN_CONFIG_PATH"`
	FailIfNoResults   bool   `envconfig:"PLUGIN_FAIL_IF_NO_RESULTS"`
	FailOnFailedTests bool   `envconfig:"PLUGIN_FAIL_ON_FAILED_TESTS"`
	Level             string `envconfig:"PLUGIN_LOG_LEVEL"`

	// Credentials set in the environment take precedence over the
	// configuration file.
	URL      string `envconfig:"SPIRA_URL"`
	Username string `envconfig:"SPIRA_USERNAME"`
	APIKey   string `envconfig:"SPIRA_API_KEY"`
}

// ValidateInputs ensures the user inputs meet the plugin requirements.
func ValidateInputs(args Args) error {
	if args.ReportPath == "" {
		return errors.New("missing required parameter: ReportPath. Please specify the xUnit report file or glob pattern")
	}
	if args.ConfigPath == "" {
		return errors.New("missing required parameter: ConfigPath. Please specify the Spira configuration file")
	}
	return nil
}

// Exec parses the configured xUnit reports and records every mapped test
// case result against the Spira server.
func Exec(ctx context.Context, args Args) error {
	files, err := locateReports(args.ReportPath)
	if err != nil {
		logger := logrus.WithError(err)
		logger.Error("Error locating report files")
		return errors.New("failed to locate report files: " + err.Error())
	}

	cfg, err := LoadConfig(args.ConfigPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, args)

	var (
		results []TestResult
		totals  Results
		build   BuildInfo
	)
	for i, file := range files {
		data, err := processFile(file, cfg)
		if err != nil {
			logger := logrus.WithField("File", file).WithError(err)
			logger.Error("Error processing file")
			return errors.New("failed to process file: " + err.Error())
		}
		results = append(results, data.Results...)
		totals.Total += data.Totals.Total
		totals.Failures += data.Totals.Failures
		totals.Errors += data.Totals.Errors
		totals.Warnings += data.Totals.Warnings
		totals.Skipped += data.Totals.Skipped
		totals.Dropped += data.Totals.Dropped
		totals.Duration += data.Totals.Duration
		if i == 0 {
			build = data.Build
		}
	}

	// Log aggregated results
	logrus.Infof("\n===============================================")
	logrus.Infof("\nTotal Tests: %d | Failures: %d | Errors: %d | Warnings: %d | Skips: %d | Duration: %.2f s", totals.Total, totals.Failures, totals.Errors, totals.Warnings, totals.Skipped, totals.Duration)
	logrus.Infof("\nMapped to Spira test cases: %d | Unmapped: %d", len(results), totals.Dropped)
	logrus.Infof("\n===============================================")

	if len(results) == 0 {
		if args.FailIfNoResults {
			return errors.New("no test results matched the Spira test case mappings")
		}
		logrus.Warn("No test results matched the Spira test case mappings, nothing to report")
	} else {
		submitter := NewSubmitter(cfg)
		submitter.Submit(ctx, results, build)
	}

	// Failed tests trip the error even when none of them is mapped.
	if args.FailOnFailedTests && totals.Failures > 0 {
		return fmt.Errorf("%d failed test(s) found and FailOnFailedTests is set", totals.Failures)
	}
	return nil
}

// locateReports identifies report files matching the given pattern.
func locateReports(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		logger := logrus.WithError(err).WithField("Pattern", pattern)
		logger.Error("Error occurred while searching for report files")
		return nil, errors.New("failed to search for report files: " + err.Error())
	}
	if len(matches) == 0 {
		return nil, errors.New("no report files found matching " + pattern)
	}
	return matches, nil
}

// applyOverrides lets credentials from the environment take precedence over
// the configuration file.
func applyOverrides(cfg *Config, args Args) {
	if args.URL != "" {
		cfg.URL = args.URL
	}
	if args.Username != "" {
		cfg.Username = args.Username
	}
	if args.APIKey != "" {
		cfg.Token = args.APIKey
	}
}
