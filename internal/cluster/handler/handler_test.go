package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"rollguard/internal/cluster/handler/mocks"
	"rollguard/internal/cluster/models"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
)

type ClusterHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestClusterHandlerSuite(t *testing.T) {
	suite.Run(t, new(ClusterHandlerSuite))
}

func (s *ClusterHandlerSuite) SetupTest() {
	s.service = mocks.NewMockService(gomock.NewController(s.T()))
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *ClusterHandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *ClusterHandlerSuite) TestDetectWithConfiguredThresholds() {
	s.service.EXPECT().Thresholds().Return(models.DefaultThresholds())
	s.service.EXPECT().DetectAddressClusters(gomock.Any(), (*models.Thresholds)(nil)).
		Return(&models.Result{FlagsCreated: 2, Flags: []*models.Flag{{}, {}}}, nil)

	w := s.do(http.MethodPost, "/v1/clusters/detect", `{}`)
	s.Equal(http.StatusOK, w.Code)

	var res models.Result
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	s.Equal(2, res.FlagsCreated)
}

func (s *ClusterHandlerSuite) TestDetectOverridesTiers() {
	s.service.EXPECT().Thresholds().Return(models.DefaultThresholds())
	s.service.EXPECT().DetectAddressClusters(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, th *models.Thresholds) (*models.Result, error) {
			s.Require().NotNil(th)
			s.Equal(3, th.Low)
			s.Equal(models.DefaultThresholds().Medium, th.Medium)
			return &models.Result{}, nil
		})

	w := s.do(http.MethodPost, "/v1/clusters/detect", `{"low":3}`)
	s.Equal(http.StatusOK, w.Code)
}

func (s *ClusterHandlerSuite) TestOverlappingRunIsConflict() {
	s.service.EXPECT().Thresholds().Return(models.DefaultThresholds())
	s.service.EXPECT().DetectAddressClusters(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeConflict, "detection already running"))

	w := s.do(http.MethodPost, "/v1/clusters/detect", `{}`)
	s.Equal(http.StatusConflict, w.Code)
}

func (s *ClusterHandlerSuite) TestReopen() {
	flagID := id.ClusterFlagID(uuid.New())
	s.service.EXPECT().ReopenFlag(gomock.Any(), flagID, "new registrations").
		Return(nil, dErrors.New(dErrors.CodeInvalidState, "only resolved or false-positive flags can be reopened"))

	w := s.do(http.MethodPost, "/v1/clusters/flags/"+flagID.String()+"/reopen", `{"reason":"new registrations"}`)
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/v1/clusters/flags/"+flagID.String()+"/reopen", `{}`)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *ClusterHandlerSuite) TestGetMalformedID() {
	w := s.do(http.MethodGet, "/v1/clusters/flags/xyz", "")
	s.Equal(http.StatusBadRequest, w.Code)
}
