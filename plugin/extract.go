package plugin

import (
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Spira execution status ids. The xUnit case statuses map to failure=Failed,
// warning=Caution, error=Blocked and skipped=NotApplicable.
const (
	statusFailed        = 1
	statusPassed        = 2
	statusNotApplicable = 4
	statusBlocked       = 5
	statusCaution       = 6
)

// attachmentMarker matches [[ATTACHMENT|relative/path.ext]] markers embedded
// in captured test output.
var attachmentMarker = regexp.MustCompile(`\[\[ATTACHMENT\|([\w/\\.]+)\]\]`)

// extractCase normalizes one test case. It reports false when the qualified
// case name has no entry in the test case mapping table.
func extractCase(tc TestCase, suiteName, baseDir string, cfg *Config) (TestResult, bool) {
	fullName := tc.Classname + "." + tc.Name
	id, ok := cfg.TestCaseIDs[strings.ToLower(fullName)]
	if !ok {
		logrus.Warnf("No test case mapping for %q, dropping result", fullName)
		return TestResult{}, false
	}

	status, message, body := resolveStatus(tc)
	result := TestResult{
		TestCaseID:  id,
		Name:        fullName,
		StatusID:    status,
		Message:     message,
		Details:     caseDetails(body, tc),
		AssertCount: assertCount(tc),
		Duration:    durationAttr(tc.Time),
		TestSetID:   resolveTestSet(suiteName, cfg),
	}
	result.Attachments, result.Links = collectAttachments(tc, baseDir)
	return result, true
}

// resolveStatus picks the Spira execution status for a test case and returns
// it with the message and detail text of the status node that produced it.
// When several status nodes appear the most severe one wins.
func resolveStatus(tc TestCase) (int, string, string) {
	switch {
	case tc.Failure != nil:
		return statusFailed, statusMessage(tc.Failure, "Test failed"), tc.Failure.Body
	case tc.Warning != nil:
		return statusCaution, statusMessage(tc.Warning, "Test warning"), tc.Warning.Body
	case tc.Error != nil:
		return statusBlocked, statusMessage(tc.Error, "Test error"), tc.Error.Body
	case tc.Skipped != nil:
		return statusNotApplicable, statusMessage(tc.Skipped, "Test skipped"), tc.Skipped.Body
	}
	return statusPassed, "Success", ""
}

// statusMessage returns the status node's message attribute or a fallback.
func statusMessage(status *CaseStatus, fallback string) string {
	if status.Message != "" {
		return status.Message
	}
	return fallback
}

// resolveTestSet maps the enclosing suite name to a test set id, returning -1
// when no mapping applies so the configured default can take over.
func resolveTestSet(suiteName string, cfg *Config) int {
	if id, ok := cfg.TestSetIDs[strings.ToLower(suiteName)]; ok {
		return id
	}
	return -1
}

// caseDetails concatenates the status body, the captured output streams and
// the case properties into the detail text recorded with the run.
func caseDetails(statusBody string, tc TestCase) string {
	var parts []string
	if s := strings.TrimSpace(statusBody); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(tc.SystemOut); s != "" {
		parts = append(parts, "System Out: "+s)
	}
	if s := strings.TrimSpace(tc.SystemErr); s != "" {
		parts = append(parts, "System Err: "+s)
	}
	for _, p := range tc.Properties {
		parts = append(parts, "- "+p.Name+"="+p.Value)
	}
	return strings.Join(parts, "\n")
}

// assertCount derives the assertion count: one when a status node is present,
// overridden by an explicit assertions attribute when it parses.
func assertCount(tc TestCase) int {
	count := 0
	if tc.Failure != nil || tc.Warning != nil || tc.Error != nil || tc.Skipped != nil {
		count = 1
	}
	if v := strings.TrimSpace(tc.Assertions); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			count = n
		}
	}
	return count
}

// durationAttr parses the time attribute as seconds, defaulting to zero for
// anything unparseable, negative or non-finite.
func durationAttr(value string) float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	return d
}

// collectAttachments gathers file attachments and URL links for a test case:
// [[ATTACHMENT|path]] markers in the output streams and property values, plus
// properties whose name starts with "attachment". URL-valued attachment
// properties become links; anything else is read as a file relative to the
// report directory.
func collectAttachments(tc TestCase, baseDir string) ([]Attachment, []string) {
	var files []Attachment
	var links []string

	addFile := func(path string) {
		if att, ok := readAttachment(baseDir, path); ok {
			files = append(files, att)
		}
	}
	for _, m := range attachmentMarker.FindAllStringSubmatch(tc.SystemOut, -1) {
		addFile(m[1])
	}
	for _, m := range attachmentMarker.FindAllStringSubmatch(tc.SystemErr, -1) {
		addFile(m[1])
	}
	for _, p := range tc.Properties {
		for _, m := range attachmentMarker.FindAllStringSubmatch(p.Value, -1) {
			addFile(m[1])
		}
		if !strings.HasPrefix(p.Name, "attachment") {
			continue
		}
		if strings.HasPrefix(p.Value, "http") {
			links = append(links, p.Value)
			continue
		}
		addFile(p.Value)
	}
	return files, links
}

// readAttachment loads one attachment file into memory. Unreadable files are
// logged and dropped.
func readAttachment(baseDir, path string) (Attachment, bool) {
	data, err := os.ReadFile(filepath.Join(baseDir, path))
	if err != nil {
		logrus.WithError(err).Warnf("Unable to read attachment %q, skipping", path)
		return Attachment{}, false
	}
	return Attachment{Filename: filepath.Base(path), Data: data}, true
}
