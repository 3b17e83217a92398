package plugin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTestRun(t *testing.T) {
	var (
		gotPath   string
		gotQuery  map[string]string
		gotHeader http.Header
		gotBody   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{
			"username": r.URL.Query().Get("username"),
			"api-key":  r.URL.Query().Get("api-key"),
		}
		gotHeader = r.Header
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = body

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"TestRunId": 101}`)
	}))
	defer srv.Close()

	client := NewSpiraClient(srv.URL+"/", "fredbloggs", "key-123")
	releaseID := 5
	id, err := client.RecordTestRun(context.Background(), 1, RemoteTestRun{
		TestCaseID:        2,
		TestRunFormatID:   testRunFormatPlainText,
		RunnerName:        runnerName,
		RunnerTestName:    "lis.registration.registration1",
		ExecutionStatusID: statusPassed,
		StartDate:         "2025-03-10T12:00:00Z",
		EndDate:           "2025-03-10T12:00:30Z",
		ReleaseID:         &releaseID,
	})
	require.NoError(t, err)
	assert.Equal(t, 101, id)

	assert.Equal(t, "/Services/v6_0/RestService.svc/projects/1/test-runs/record", gotPath)
	assert.Equal(t, "fredbloggs", gotQuery["username"])
	assert.Equal(t, "key-123", gotQuery["api-key"])
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, userAgent, gotHeader.Get("User-Agent"))

	// The wire format uses Spira's field names; unset optional ids are
	// omitted entirely.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &raw))
	assert.Equal(t, float64(2), raw["TestCaseId"])
	assert.Equal(t, float64(1), raw["TestRunFormatId"])
	assert.Equal(t, "xUnit", raw["RunnerName"])
	assert.Equal(t, float64(2), raw["ExecutionStatusId"])
	assert.Equal(t, float64(5), raw["ReleaseId"])
	assert.NotContains(t, raw, "BuildId")
	assert.NotContains(t, raw, "TestSetId")
	assert.NotContains(t, raw, "TestRunId")
}

func TestCreateBuild(t *testing.T) {
	var gotPath string
	var gotBody RemoteBuild
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"BuildId": 77}`)
	}))
	defer srv.Close()

	client := NewSpiraClient(srv.URL, "fredbloggs", "key-123")
	id, err := client.CreateBuild(context.Background(), 1, 5, RemoteBuild{
		Name:          "nightly",
		Description:   "Tests: 4, Failures: 1, Errors: 0, Skipped: 1, Assertions: 6",
		BuildStatusID: buildStatusFailed,
	})
	require.NoError(t, err)
	assert.Equal(t, 77, id)
	assert.Equal(t, "/Services/v6_0/RestService.svc/projects/1/releases/5/builds", gotPath)
	assert.Equal(t, "nightly", gotBody.Name)
	assert.Equal(t, buildStatusFailed, gotBody.BuildStatusID)
}

func TestAttachFile(t *testing.T) {
	var gotPath string
	var gotBody RemoteDocument
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"AttachmentId": 9}`)
	}))
	defer srv.Close()

	client := NewSpiraClient(srv.URL, "fredbloggs", "key-123")
	err := client.AttachFile(context.Background(), 1, 501, Attachment{
		Filename: "shot.png",
		Data:     []byte("PNG"),
	})
	require.NoError(t, err)

	assert.Equal(t, "/Services/v6_0/RestService.svc/projects/1/documents/file", gotPath)
	assert.Equal(t, "shot.png", gotBody.FilenameOrURL)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("PNG")), gotBody.BinaryData)
	assert.Equal(t, attachmentTypeFile, gotBody.AttachmentTypeID)
	require.Len(t, gotBody.AttachedArtifacts, 1)
	assert.Equal(t, 501, gotBody.AttachedArtifacts[0].ArtifactID)
	assert.Equal(t, artifactTypeTestRun, gotBody.AttachedArtifacts[0].ArtifactTypeID)
}

func TestAttachURL(t *testing.T) {
	var gotPath string
	var gotBody RemoteDocument
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"AttachmentId": 10}`)
	}))
	defer srv.Close()

	client := NewSpiraClient(srv.URL, "fredbloggs", "key-123")
	err := client.AttachURL(context.Background(), 1, 501, "https://ci.example.com/build/42")
	require.NoError(t, err)

	assert.Equal(t, "/Services/v6_0/RestService.svc/projects/1/documents/url", gotPath)
	assert.Equal(t, "https://ci.example.com/build/42", gotBody.FilenameOrURL)
	assert.Empty(t, gotBody.BinaryData)
	assert.Equal(t, attachmentTypeURL, gotBody.AttachmentTypeID)
	require.Len(t, gotBody.AttachedArtifacts, 1)
	assert.Equal(t, 501, gotBody.AttachedArtifacts[0].ArtifactID)
}

func TestClientNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewSpiraClient(srv.URL, "fredbloggs", "key-123")
	_, err := client.RecordTestRun(context.Background(), 1, RemoteTestRun{TestCaseID: 2})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "database offline")
	}))
	defer srv.Close()

	client := NewSpiraClient(srv.URL, "fredbloggs", "key-123")
	_, err := client.CreateBuild(context.Background(), 1, 5, RemoteBuild{Name: "nightly"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "database offline")
}
