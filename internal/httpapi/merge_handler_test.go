package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"catalogbridge/internal/catalog/orchestrator"
	"catalogbridge/internal/device/localfs"
	"catalogbridge/internal/lock"
	"catalogbridge/internal/models"
	"catalogbridge/internal/progress"
	"catalogbridge/internal/recovery"
	"catalogbridge/pkg/semaphore"
)

type MergeHandlerTestSuite struct {
	suite.Suite
	router *gin.Engine
	merges *MergeHandler
}

func (s *MergeHandlerTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

func (s *MergeHandlerTestSuite) SetupTest() {
	devicePath := s.T().TempDir()
	adapter, err := localfs.New(devicePath)
	require.NoError(s.T(), err)

	mr, err := miniredis.Run()
	require.NoError(s.T(), err)
	s.T().Cleanup(mr.Close)
	locks := lock.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "catalogbridge:merge-lock:", time.Minute)

	hubs := progress.NewRegistry()
	orch := orchestrator.New(adapter, locks, hubs, zap.NewNop())
	sem := semaphore.New(2)

	s.merges = NewMergeHandler(orch, sem, zap.NewNop())
	progressHandler := NewProgressHandler(hubs, s.merges, zap.NewNop())
	health := recovery.NewHealthChecker(time.Minute, time.Second, zap.NewNop())
	healthHandler := NewHealthHandler(health)

	s.router = NewRouter(zap.NewNop(), s.merges, progressHandler, healthHandler)
}

func (s *MergeHandlerTestSuite) postMerge(req models.MergeRequest) *httptest.ResponseRecorder {
	body, err := json.Marshal(req)
	require.NoError(s.T(), err)

	httpReq := httptest.NewRequest(http.MethodPost, "/api/v1/merges", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httpReq)
	return w
}

func (s *MergeHandlerTestSuite) TestSubmitRejectsMissingDeviceID() {
	w := s.postMerge(models.MergeRequest{})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *MergeHandlerTestSuite) TestSubmitAcceptsValidRequestAndReportsCompletion() {
	srcDir := s.T().TempDir()
	audioPath := filepath.Join(srcDir, "song.mp3")
	require.NoError(s.T(), os.WriteFile(audioPath, []byte("payload"), 0o644))

	w := s.postMerge(models.MergeRequest{
		DeviceID: "device-http-1",
		Items: []models.InputItem{{
			LocalPath:      audioPath,
			Title:          "A Song",
			Artist:         "An Artist",
			Album:          "An Album",
			RemoteFilename: "ZZZZ.mp3",
		}},
	})
	s.Equal(http.StatusAccepted, w.Code)

	var job mergeJob
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &job))
	s.Equal("device-http-1", job.DeviceID)
	s.Equal(jobQueued, job.Status)

	s.Require().Eventually(func() bool {
		statusReq := httptest.NewRequest(http.MethodGet, "/api/v1/merges/"+job.ID, nil)
		statusW := httptest.NewRecorder()
		s.router.ServeHTTP(statusW, statusReq)

		var polled mergeJob
		if err := json.Unmarshal(statusW.Body.Bytes(), &polled); err != nil {
			return false
		}
		return polled.Status == jobDone
	}, 5*time.Second, 10*time.Millisecond)
}

func (s *MergeHandlerTestSuite) TestStatusReturnsNotFoundForUnknownJob() {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/merges/does-not-exist", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusNotFound, w.Code)
}

func TestMergeHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(MergeHandlerTestSuite))
}
