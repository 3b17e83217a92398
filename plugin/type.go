package plugin

import "encoding/xml"

// TestReport represents the root of an xUnit XML report. The root element is
// usually <testsuites>, but reports produced by some runners use a bare
// <testsuite> or a custom wrapper, so the element name is kept open and
// inspected after unmarshalling.
type TestReport struct {
	XMLName    xml.Name
	Name       string      `xml:"name,attr"`
	Tests      string      `xml:"tests,attr"`
	Failures   string      `xml:"failures,attr"`
	Errors     string      `xml:"errors,attr"`
	Skipped    string      `xml:"skipped,attr"`
	Assertions string      `xml:"assertions,attr"`
	Suites     []TestSuite `xml:"testsuite"`
	Cases      []TestCase  `xml:"testcase"`
}

// TestSuite represents a test suite, which may nest further suites.
type TestSuite struct {
	Name   string      `xml:"name,attr"`
	Suites []TestSuite `xml:"testsuite"`
	Cases  []TestCase  `xml:"testcase"`
}

// TestCase represents a single test case. At most one of the status child
// nodes is expected; when several appear the most severe one wins.
type TestCase struct {
	Name       string      `xml:"name,attr"`
	Classname  string      `xml:"classname,attr"`
	Time       string      `xml:"time,attr"`
	Assertions string      `xml:"assertions,attr"`
	Failure    *CaseStatus `xml:"failure"`
	Warning    *CaseStatus `xml:"warning"`
	Error      *CaseStatus `xml:"error"`
	Skipped    *CaseStatus `xml:"skipped"`
	SystemOut  string      `xml:"system-out"`
	SystemErr  string      `xml:"system-err"`
	Properties []Property  `xml:"properties>property"`
}

// CaseStatus represents a failure, warning, error or skipped child node.
type CaseStatus struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// Property represents a name/value pair attached to a test case.
type Property struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// TestResult is a test case resolved against the Spira mapping tables,
// normalized and ready for submission.
type TestResult struct {
	TestCaseID  int
	Name        string
	StatusID    int
	Message     string
	Details     string
	AssertCount int
	Duration    float64
	TestSetID   int
	Attachments []Attachment
	Links       []string
}

// Attachment is a file read from disk for upload alongside a test run.
type Attachment struct {
	Filename string
	Data     []byte
}

// BuildInfo carries the report-level name and totals used to create a build.
type BuildInfo struct {
	Name       string
	Tests      int
	Failures   int
	Errors     int
	Skipped    int
	Assertions int
}

// Results aggregates test case counts across parsed report files. Dropped
// counts cases without a test case mapping.
type Results struct {
	Total    int
	Failures int
	Errors   int
	Warnings int
	Skipped  int
	Dropped  int
	Duration float64
}

// ReportData bundles everything one parsed report file contributes.
type ReportData struct {
	Results []TestResult
	Totals  Results
	Build   BuildInfo
}
