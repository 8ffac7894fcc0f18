package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// getBaseURL returns the base URL for API calls.
// Uses ALERTSCOPE_BASE_URL env var if set (for container tests),
// otherwise defaults to localhost:8080.
func getBaseURL() string {
	if url := os.Getenv("ALERTSCOPE_BASE_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

// httpClient creates an HTTP client with sensible defaults.
func httpClient() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second,
	}
}

// doRequest performs an HTTP request and returns the response.
func doRequest(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	url := getBaseURL() + path
	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return httpClient().Do(req)
}

// parseResponse parses JSON response into target.
func parseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// dataOf performs a request, checks the status and returns the envelope data.
func dataOf(method, path string, body any, wantStatus int) map[string]any {
	resp, err := doRequest(method, path, body)
	Expect(err).NotTo(HaveOccurred())
	Expect(resp.StatusCode).To(Equal(wantStatus))

	var result map[string]any
	Expect(parseResponse(resp, &result)).To(Succeed())
	data, _ := result["data"].(map[string]any)
	return data
}

// alertStatuses returns the kibana.alert.status of each alert in an alerts response.
func alertStatuses(data map[string]any) []string {
	result, _ := data["data"].(map[string]any)
	alerts, _ := result["alerts"].([]any)
	statuses := make([]string, 0, len(alerts))
	for _, a := range alerts {
		values, _ := a.(map[string]any)["kibana.alert.status"].([]any)
		if len(values) > 0 {
			statuses = append(statuses, fmt.Sprint(values[0]))
		}
	}
	return statuses
}

var _ = Describe("HTTP Integration Tests", Ordered, func() {
	var (
		sessionID string
		spaceID   = fmt.Sprintf("it-%d", time.Now().UnixNano())
	)

	BeforeAll(func() {
		// Check if the server is reachable
		resp, err := doRequest("GET", "/healthz", nil)
		if err != nil {
			Skip(fmt.Sprintf("Server not reachable at %s: %v", getBaseURL(), err))
		}
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	AfterAll(func() {
		if sessionID != "" {
			_, _ = doRequest("DELETE", "/v1/sessions/"+sessionID, nil)
		}
	})

	Describe("Health Check", func() {
		It("should return healthy status", func() {
			resp, err := doRequest("GET", "/healthz", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should expose prometheus metrics", func() {
			resp, err := doRequest("GET", "/metrics", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("alertscope_"))
		})
	})

	Describe("Alerts Search API", func() {
		It("should search one page of alerts", func() {
			data := dataOf("POST", "/v1/alerts/_search", map[string]any{
				"featureIds": []string{"logs"},
				"pageSize":   5,
			}, http.StatusOK)

			Expect(data["total"]).To(BeNumerically(">=", 0))
			Expect(len(data["alerts"].([]any))).To(BeNumerically("<=", 5))
		})

		It("should reject an unknown feature id", func() {
			resp, err := doRequest("POST", "/v1/alerts/_search", map[string]any{
				"featureIds": []string{"unknown"},
			})
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should resolve the security data view", func() {
			data := dataOf("GET", "/v1/data-view?featureIds=siem", nil, http.StatusOK)

			Expect(data["isLoading"]).To(BeFalse())
			Expect(data).To(HaveKey("dataView"))
		})

		It("should not resolve a data view for mixed features", func() {
			data := dataOf("GET", "/v1/data-view?featureIds=siem,logs", nil, http.StatusOK)

			Expect(data).NotTo(HaveKey("dataView"))
		})
	})

	Describe("Explorer Sessions API", func() {
		It("should create a session", func() {
			data := dataOf("POST", "/v1/sessions", map[string]any{
				"spaceId":    spaceID,
				"featureIds": []string{"siem"},
				"page":       map[string]any{"pageSize": 50},
			}, http.StatusCreated)

			sessionID = data["id"].(string)
			Expect(sessionID).NotTo(BeEmpty())
			Expect(data["spaceId"]).To(Equal(spaceID))
		})

		It("should return alerts once the fetch settles", func() {
			data := dataOf("GET", "/v1/sessions/"+sessionID+"/alerts?wait=true", nil, http.StatusOK)

			Expect(data["enabled"]).To(BeTrue())
			Expect(data["isFetching"]).To(BeFalse())
		})

		It("should narrow alerts by search bar status", func() {
			dataOf("PATCH", "/v1/sessions/"+sessionID+"/search-bar", map[string]any{
				"status": "recovered",
			}, http.StatusOK)

			Eventually(func() []string {
				data := dataOf("GET", "/v1/sessions/"+sessionID+"/alerts?wait=true", nil, http.StatusOK)
				return alertStatuses(data)
			}, 5*time.Second, 100*time.Millisecond).Should(HaveEach("recovered"))
		})

		It("should reject an invalid status", func() {
			resp, err := doRequest("PATCH", "/v1/sessions/"+sessionID+"/search-bar", map[string]any{
				"status": "flapping",
			})
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Filter Group API", func() {
		It("should reject adding controls in view mode", func() {
			resp, err := doRequest("POST", "/v1/sessions/"+sessionID+"/filter-group/controls", map[string]any{
				"fieldName": "host.name",
			})
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("should track pending changes in edit mode", func() {
			dataOf("POST", "/v1/sessions/"+sessionID+"/filter-group/edit", nil, http.StatusOK)
			dataOf("DELETE", "/v1/sessions/"+sessionID+"/filter-group/controls?field=tags", nil, http.StatusOK)

			data := dataOf("GET", "/v1/sessions/"+sessionID+"/filter-group", nil, http.StatusOK)
			Expect(data["viewMode"]).To(Equal("edit"))
			Expect(data["hasPendingChanges"]).To(BeTrue())
		})

		It("should restore controls on discard", func() {
			data := dataOf("POST", "/v1/sessions/"+sessionID+"/filter-group/discard", nil, http.StatusOK)

			Expect(data["viewMode"]).To(Equal("view"))
			Expect(data["hasPendingChanges"]).To(BeFalse())
		})

		It("should refetch alerts after a control selection", func() {
			dataOf("PATCH", "/v1/sessions/"+sessionID+"/search-bar", map[string]any{
				"status": "all",
			}, http.StatusOK)
			dataOf("PUT", "/v1/sessions/"+sessionID+"/filter-group/selection", map[string]any{
				"fieldName": "kibana.alert.status",
				"selection": map[string]any{"selectedOptions": []string{"active"}},
			}, http.StatusOK)

			Eventually(func() []string {
				data := dataOf("GET", "/v1/sessions/"+sessionID+"/alerts?wait=true", nil, http.StatusOK)
				return alertStatuses(data)
			}, 5*time.Second, 100*time.Millisecond).Should(And(Not(BeEmpty()), HaveEach("active")))
		})
	})

	Describe("Session Deletion", func() {
		It("should delete the session", func() {
			resp, err := doRequest("DELETE", "/v1/sessions/"+sessionID, nil)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			resp, err = doRequest("GET", "/v1/sessions/"+sessionID, nil)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			sessionID = ""
		})
	})
})
