package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Submitter pushes normalized test results to a Spira instance, one request
// at a time in report order.
type Submitter struct {
	client *SpiraClient
	cfg    *Config
	now    func() time.Time
}

// NewSubmitter builds a submitter for the configured Spira instance.
func NewSubmitter(cfg *Config) *Submitter {
	return &Submitter{
		client: NewSpiraClient(cfg.URL, cfg.Username, cfg.Token),
		cfg:    cfg,
		now:    time.Now,
	}
}

// Submit records every result against Spira. Failures are logged and never
// abort the loop; the number of successfully recorded runs is returned.
func (s *Submitter) Submit(ctx context.Context, results []TestResult, build BuildInfo) int {
	if s.cfg.URL == "" {
		logrus.Warn("Spira URL is not configured, results cannot be reported")
		return 0
	}

	buildID := -1
	if s.cfg.CreateBuild {
		buildID = s.createBuild(ctx, results, build)
	}

	succeeded := 0
	for _, result := range results {
		if s.submitResult(ctx, result, buildID) {
			succeeded++
		}
	}
	logrus.Infof("Successfully reported %d of %d test results to Spira", succeeded, len(results))
	return succeeded
}

// createBuild records one build covering the whole report and returns its id,
// or -1 when no build was created.
func (s *Submitter) createBuild(ctx context.Context, results []TestResult, build BuildInfo) int {
	if s.cfg.ReleaseID == -1 {
		logrus.Warn("create_build is set but release_id is not, skipping build creation")
		return -1
	}

	status := buildStatusPassed
	for _, result := range results {
		if result.StatusID == statusFailed {
			status = buildStatusFailed
			break
		}
	}

	name := build.Name
	if name == "" {
		name = "xUnit build " + s.now().UTC().Format("2006-01-02 15:04:05")
	}
	payload := RemoteBuild{
		Name:          name,
		Description:   fmt.Sprintf("Tests: %d, Failures: %d, Errors: %d, Skipped: %d, Assertions: %d", build.Tests, build.Failures, build.Errors, build.Skipped, build.Assertions),
		BuildStatusID: status,
	}

	id, err := s.client.CreateBuild(ctx, s.cfg.ProjectID, s.cfg.ReleaseID, payload)
	if err != nil {
		logger := logrus.WithError(err)
		if errors.Is(err, ErrNotFound) {
			logger.Error("Project or release not found on the Spira server, skipping build creation")
		} else {
			logger.Error("Failed to create build")
		}
		return -1
	}
	logrus.Infof("Created build %d for release %d", id, s.cfg.ReleaseID)
	return id
}

// submitResult records one test run and its attachments. It reports whether
// the run itself was recorded.
func (s *Submitter) submitResult(ctx context.Context, result TestResult, buildID int) bool {
	end := s.now().UTC()
	start := end.Add(-time.Duration(result.Duration * float64(time.Second)))

	run := RemoteTestRun{
		TestCaseID:        result.TestCaseID,
		TestRunFormatID:   testRunFormatPlainText,
		RunnerName:        runnerName,
		RunnerTestName:    result.Name,
		RunnerMessage:     result.Message,
		RunnerStackTrace:  result.Details,
		RunnerAssertCount: result.AssertCount,
		ExecutionStatusID: result.StatusID,
		StartDate:         start.Format(time.RFC3339),
		EndDate:           end.Format(time.RFC3339),
	}
	if s.cfg.ReleaseID != -1 {
		releaseID := s.cfg.ReleaseID
		run.ReleaseID = &releaseID
		if buildID != -1 {
			run.BuildID = &buildID
		}
	}
	if testSetID := s.effectiveTestSet(result); testSetID != -1 {
		run.TestSetID = &testSetID
	}

	id, err := s.client.RecordTestRun(ctx, s.cfg.ProjectID, run)
	if err != nil {
		logger := logrus.WithField("Test", result.Name).WithError(err)
		if errors.Is(err, ErrNotFound) {
			logger.Error("Test case not found on the Spira server")
		} else {
			logger.Error("Failed to record test run")
		}
		return false
	}
	if id < 1 {
		logrus.WithField("Test", result.Name).Errorf("Spira returned an invalid test run id %d", id)
		return false
	}

	for _, att := range result.Attachments {
		if err := s.client.AttachFile(ctx, s.cfg.ProjectID, id, att); err != nil {
			logrus.WithField("Attachment", att.Filename).WithError(err).Error("Failed to upload attachment")
		}
	}
	for _, link := range result.Links {
		if err := s.client.AttachURL(ctx, s.cfg.ProjectID, id, link); err != nil {
			logrus.WithField("URL", link).WithError(err).Error("Failed to attach URL")
		}
	}
	return true
}

// effectiveTestSet picks the suite-mapped test set id for a result, falling
// back to the configured default.
func (s *Submitter) effectiveTestSet(result TestResult) int {
	if result.TestSetID != -1 {
		return result.TestSetID
	}
	return s.cfg.TestSetID
}
