package plugin

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// restServicePath is the root of the Spira v6.0 REST service, relative
	// to the application base URL.
	restServicePath = "/Services/v6_0/RestService.svc/"

	runnerName = "xUnit"
	userAgent  = "spira-addons-xunit"

	testRunFormatPlainText = 1

	buildStatusFailed = 1
	buildStatusPassed = 2

	attachmentTypeFile = 1
	attachmentTypeURL  = 2

	artifactTypeTestRun = 5

	httpTimeout = 30 * time.Second
)

// ErrNotFound is returned when Spira answers 404 for the addressed entity.
var ErrNotFound = errors.New("entity not found on the Spira server")

// RemoteBuild mirrors the Spira v6.0 build resource.
type RemoteBuild struct {
	BuildID       int    `json:"BuildId,omitempty"`
	Name          string `json:"Name"`
	Description   string `json:"Description,omitempty"`
	BuildStatusID int    `json:"BuildStatusId"`
}

// RemoteTestRun mirrors the Spira v6.0 automated test run resource. Release,
// build and test set ids are omitted from the request unless set.
type RemoteTestRun struct {
	TestRunID         int    `json:"TestRunId,omitempty"`
	TestCaseID        int    `json:"TestCaseId"`
	TestRunFormatID   int    `json:"TestRunFormatId"`
	RunnerName        string `json:"RunnerName"`
	RunnerTestName    string `json:"RunnerTestName"`
	RunnerMessage     string `json:"RunnerMessage"`
	RunnerStackTrace  string `json:"RunnerStackTrace"`
	RunnerAssertCount int    `json:"RunnerAssertCount"`
	ExecutionStatusID int    `json:"ExecutionStatusId"`
	StartDate         string `json:"StartDate"`
	EndDate           string `json:"EndDate"`
	ReleaseID         *int   `json:"ReleaseId,omitempty"`
	BuildID           *int   `json:"BuildId,omitempty"`
	TestSetID         *int   `json:"TestSetId,omitempty"`
}

// RemoteDocument mirrors the Spira v6.0 document resource used to attach
// files and URLs to an artifact.
type RemoteDocument struct {
	AttachmentID      int              `json:"AttachmentId,omitempty"`
	FilenameOrURL     string           `json:"FilenameOrUrl"`
	BinaryData        string           `json:"BinaryData,omitempty"`
	AttachmentTypeID  int              `json:"AttachmentTypeId"`
	AttachedArtifacts []RemoteArtifact `json:"AttachedArtifacts"`
}

// RemoteArtifact associates a document with an existing Spira artifact.
type RemoteArtifact struct {
	ArtifactID     int `json:"ArtifactId"`
	ArtifactTypeID int `json:"ArtifactTypeId"`
}

// SpiraClient talks to the Spira v6.0 REST service.
type SpiraClient struct {
	baseURL    string
	username   string
	apiKey     string
	httpClient *http.Client
}

// NewSpiraClient builds a client for the given Spira instance. The base URL
// is the application root, e.g. https://myserver/SpiraTest.
func NewSpiraClient(baseURL, username, apiKey string) *SpiraClient {
	return &SpiraClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: httpTimeout},
	}
}

// CreateBuild records a build against a release and returns its id.
func (c *SpiraClient) CreateBuild(ctx context.Context, projectID, releaseID int, build RemoteBuild) (int, error) {
	path := fmt.Sprintf("projects/%d/releases/%d/builds", projectID, releaseID)
	var created RemoteBuild
	if err := c.post(ctx, path, build, &created); err != nil {
		return 0, err
	}
	return created.BuildID, nil
}

// RecordTestRun records an automated test run and returns its id.
func (c *SpiraClient) RecordTestRun(ctx context.Context, projectID int, run RemoteTestRun) (int, error) {
	path := fmt.Sprintf("projects/%d/test-runs/record", projectID)
	var created RemoteTestRun
	if err := c.post(ctx, path, run, &created); err != nil {
		return 0, err
	}
	return created.TestRunID, nil
}

// AttachFile uploads a file attachment against a recorded test run.
func (c *SpiraClient) AttachFile(ctx context.Context, projectID, testRunID int, att Attachment) error {
	doc := RemoteDocument{
		FilenameOrURL:    att.Filename,
		BinaryData:       base64.StdEncoding.EncodeToString(att.Data),
		AttachmentTypeID: attachmentTypeFile,
		AttachedArtifacts: []RemoteArtifact{
			{ArtifactID: testRunID, ArtifactTypeID: artifactTypeTestRun},
		},
	}
	return c.post(ctx, fmt.Sprintf("projects/%d/documents/file", projectID), doc, nil)
}

// AttachURL links a URL attachment to a recorded test run.
func (c *SpiraClient) AttachURL(ctx context.Context, projectID, testRunID int, link string) error {
	doc := RemoteDocument{
		FilenameOrURL:    link,
		AttachmentTypeID: attachmentTypeURL,
		AttachedArtifacts: []RemoteArtifact{
			{ArtifactID: testRunID, ArtifactTypeID: artifactTypeTestRun},
		},
	}
	return c.post(ctx, fmt.Sprintf("projects/%d/documents/url", projectID), doc, nil)
}

// post sends one JSON request to the REST service and decodes the response
// into out when provided. A 404 surfaces as ErrNotFound.
func (c *SpiraClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request for %s: %w", path, err)
	}

	endpoint := c.baseURL + restServicePath + path +
		"?username=" + url.QueryEscape(c.username) +
		"&api-key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("spira returned status %d for %s: %s", resp.StatusCode, path, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
