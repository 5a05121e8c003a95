package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/medusa-deploy/internal/metrics"
)

type failingDoer struct{ calls int }

func (d *failingDoer) Do(*http.Request) (*http.Response, error) {
	d.calls++
	return nil, errors.New("connection reset by peer")
}

func TestReportDeployNoURLIsNoop(t *testing.T) {
	t.Parallel()

	doer := &failingDoer{}
	core, logs := observer.New(zap.DebugLevel)

	New(Options{}, doer, zap.New(core), nil).ReportDeploy(context.Background())

	assert.Zero(t, doer.calls)
	assert.Zero(t, logs.Len())
}

func TestReportDeployPostsPayload(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		received Payload
		ctype    string
	)
	router := chi.NewRouter()
	router.Post("/api/projectDeployed", func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		ctype = req.Header.Get("Content-Type")
		_ = json.NewDecoder(req.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	rec := metrics.New()
	New(Options{
		URL:                  srv.URL + "/",
		ProjectID:            "proj-1",
		PublicURL:            "https://backend.example.com",
		StorefrontPublishURL: "https://shop.example.com",
	}, srv.Client(), nil, rec).ReportDeploy(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "application/json", ctype)
	assert.Equal(t, Payload{
		ProjectID:            "proj-1",
		TemplateID:           DefaultTemplateID,
		PublicURL:            "https://backend.example.com",
		StorefrontPublishURL: "https://shop.example.com",
	}, received)
	count, err := testutil.GatherAndCount(rec.Registry(), "deploy_reports_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReportDeployPayloadFieldNames(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Payload{ProjectID: "p", TemplateID: "t", PublicURL: "u", StorefrontPublishURL: "s"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"projectId":"p","templateId":"t","publicUrl":"u","storefrontPublishUrl":"s"}`, string(data))
}

func TestReportDeploySwallowsTransportErrors(t *testing.T) {
	t.Parallel()

	doer := &failingDoer{}
	core, logs := observer.New(zap.InfoLevel)

	New(Options{URL: "http://reporter"}, doer, zap.New(core), nil).ReportDeploy(context.Background())

	assert.Equal(t, 1, doer.calls)
	assert.Equal(t, 1, logs.FilterMessage("An error occurred while reporting deploy").Len())
}

func TestReportDeploySwallowsRejection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	core, logs := observer.New(zap.InfoLevel)

	New(Options{URL: srv.URL}, srv.Client(), zap.New(core), nil).ReportDeploy(context.Background())

	assert.Equal(t, 1, logs.FilterMessage("Deploy report rejected").Len())
}

func TestReportDeployIsBoundedByTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-release:
		case <-req.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	New(Options{URL: srv.URL, Timeout: 50 * time.Millisecond}, srv.Client(), nil, nil).ReportDeploy(context.Background())
	assert.Less(t, time.Since(start), 5*time.Second)
}
