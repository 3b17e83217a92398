package plugin

import (
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// processFile reads one xUnit XML report and resolves its test cases against
// the configured Spira mappings.
func processFile(filename string, cfg *Config) (ReportData, error) {
	logrus.Infof("Processing file: %s", filename)

	data, err := os.ReadFile(filename)
	if err != nil {
		logger := logrus.WithError(err).WithField("File", filename)
		logger.Error("Failed to read file")
		return ReportData{}, errors.New("failed to read file: " + err.Error())
	}

	var report TestReport
	if err := xml.Unmarshal(data, &report); err != nil {
		logger := logrus.WithError(err).WithField("File", filename)
		logger.Error("Failed to parse xUnit XML")
		return ReportData{}, errors.New("failed to parse xUnit XML: " + err.Error())
	}

	return collectResults(report, filepath.Dir(filename), cfg), nil
}

// collectResults walks the suite tree and normalizes every mapped test case.
// Only a <testsuites> root contributes build metadata; any other root is
// treated as a single suite.
func collectResults(report TestReport, baseDir string, cfg *Config) ReportData {
	data := ReportData{}
	if report.XMLName.Local == "testsuites" {
		data.Build = BuildInfo{
			Name:       report.Name,
			Tests:      countAttr(report.Tests),
			Failures:   countAttr(report.Failures),
			Errors:     countAttr(report.Errors),
			Skipped:    countAttr(report.Skipped),
			Assertions: countAttr(report.Assertions),
		}
	}
	root := TestSuite{Name: report.Name, Suites: report.Suites, Cases: report.Cases}
	walkSuite(root, "", baseDir, cfg, &data)
	return data
}

// walkSuite descends the suite tree collecting test cases. A case belongs to
// the nearest enclosing suite that carries a name; unnamed suites inherit the
// name from their parent.
func walkSuite(suite TestSuite, inherited, baseDir string, cfg *Config, data *ReportData) {
	name := suite.Name
	if name == "" {
		name = inherited
	}
	for _, tc := range suite.Cases {
		tallyCase(tc, &data.Totals)
		result, ok := extractCase(tc, name, baseDir, cfg)
		if !ok {
			data.Totals.Dropped++
			continue
		}
		data.Results = append(data.Results, result)
	}
	for _, child := range suite.Suites {
		walkSuite(child, name, baseDir, cfg, data)
	}
}

// tallyCase updates the aggregate counters for one parsed test case.
func tallyCase(tc TestCase, totals *Results) {
	totals.Total++
	status, _, _ := resolveStatus(tc)
	switch status {
	case statusFailed:
		totals.Failures++
	case statusBlocked:
		totals.Errors++
	case statusCaution:
		totals.Warnings++
	case statusNotApplicable:
		totals.Skipped++
	}
	totals.Duration += durationAttr(tc.Time)
}

// countAttr parses a numeric report attribute, treating anything unparseable
// as zero.
func countAttr(value string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(value))
	return n
}
