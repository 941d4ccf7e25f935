package e2e

import (
	"net/http"
	"testing"
)

const createBody = `{
	"classLevel": "3ème",
	"gradingCriteria": "Notation sur 20 points, orthographe comptée"
}`

// createCorrection creates a correction and returns its id.
func createCorrection(t *testing.T, ta *testApp) string {
	t.Helper()

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/corrections/", createBody)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)

	body := parseJSON(t, resp)
	id, ok := body["id"].(string)
	if !ok || id == "" {
		t.Fatal("expected 'id' in create response")
	}
	if body["status"] != "pending" {
		t.Errorf("expected status 'pending', got %v", body["status"])
	}
	return id
}

func TestCorrectionCreate_NoAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/corrections/", createBody, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestCorrectionCreate_MissingClassLevel(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/corrections/", `{"gradingCriteria": "Sur 20"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestCorrectionPipeline_FullFlow(t *testing.T) {
	ta := setupApp(t)
	id := createCorrection(t, ta)

	// Submit two copies; the inline worker processes both before returning.
	resp, err := doMultipartRequest(t, ta.app, "/api/corrections/"+id+"/process", map[string][]byte{
		"copie-dupont.jpg": []byte("fake-image-1"),
		"copie-martin.jpg": []byte("fake-image-2"),
	}, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	processBody := parseJSON(t, resp)
	if got := processBody["filesCount"]; got != float64(2) {
		t.Errorf("expected filesCount 2, got %v", got)
	}

	// Status reflects the finished aggregate.
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/corrections/"+id+"/status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	status := parseJSON(t, resp)
	if status["status"] != "completed" {
		t.Errorf("expected status 'completed', got %v", status["status"])
	}
	if status["totalJobs"] != float64(2) || status["completedJobs"] != float64(2) {
		t.Errorf("expected 2/2 jobs, got %v/%v", status["completedJobs"], status["totalJobs"])
	}
	if url, _ := status["resultUrl"].(string); url == "" {
		t.Error("expected a result URL on a completed correction")
	}
	if _, ok := status["completedAt"]; !ok {
		t.Error("expected completedAt on a completed correction")
	}

	// One document per submitted copy.
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/corrections/"+id+"/documents", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	docsBody := parseJSON(t, resp)
	docs, ok := docsBody["documents"].([]interface{})
	if !ok {
		t.Fatal("expected 'documents' to be an array")
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	for i, d := range docs {
		doc, ok := d.(map[string]interface{})
		if !ok {
			t.Fatalf("documents[%d] is not an object", i)
		}
		if doc["url"] == "" {
			t.Errorf("documents[%d]: missing url", i)
		}
	}
}

func TestCorrectionProcess_NoFiles(t *testing.T) {
	ta := setupApp(t)
	id := createCorrection(t, ta)

	resp, err := doMultipartRequest(t, ta.app, "/api/corrections/"+id+"/process", nil, map[string]string{
		"gradingCriteria": "Sur 20",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	// The correction is untouched and still accepts a valid submission.
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/corrections/"+id+"/status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	status := parseJSON(t, resp)
	if status["status"] != "pending" {
		t.Errorf("expected status 'pending', got %v", status["status"])
	}
}

func TestCorrectionProcess_UnknownCorrection(t *testing.T) {
	ta := setupApp(t)

	resp, err := doMultipartRequest(t, ta.app, "/api/corrections/00000000-0000-0000-0000-000000000000/process", map[string][]byte{
		"copie.jpg": []byte("fake-image"),
	}, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestCorrectionProcess_DoubleSubmission(t *testing.T) {
	ta := setupApp(t)
	id := createCorrection(t, ta)

	resp, err := doMultipartRequest(t, ta.app, "/api/corrections/"+id+"/process", map[string][]byte{
		"copie.jpg": []byte("fake-image"),
	}, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	resp, err = doMultipartRequest(t, ta.app, "/api/corrections/"+id+"/process", map[string][]byte{
		"copie.jpg": []byte("fake-image"),
	}, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestCorrectionStatus_InvalidID(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/corrections/not-a-uuid/status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestCorrectionStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/corrections/00000000-0000-0000-0000-000000000000/status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestCorrectionCancel(t *testing.T) {
	ta := setupApp(t)
	id := createCorrection(t, ta)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/corrections/"+id+"/cancel", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["success"] != true {
		t.Errorf("expected success true, got %v", body["success"])
	}
	if body["status"] != "failed" {
		t.Errorf("expected status 'failed', got %v", body["status"])
	}

	// Canceling a settled correction is rejected.
	resp, err = doAuthRequest(t, ta.app, http.MethodPost, "/api/corrections/"+id+"/cancel", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestCorrectionCancel_BlocksLateSubmission(t *testing.T) {
	ta := setupApp(t)
	id := createCorrection(t, ta)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/corrections/"+id+"/cancel", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	resp, err = doMultipartRequest(t, ta.app, "/api/corrections/"+id+"/process", map[string][]byte{
		"copie.jpg": []byte("fake-image"),
	}, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}
