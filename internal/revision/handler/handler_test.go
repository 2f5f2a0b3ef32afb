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

	"rollguard/internal/revision/handler/mocks"
	"rollguard/internal/revision/models"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/httputil"
)

type RevisionHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestRevisionHandlerSuite(t *testing.T) {
	suite.Run(t, new(RevisionHandlerSuite))
}

func (s *RevisionHandlerSuite) SetupTest() {
	s.service = mocks.NewMockService(gomock.NewController(s.T()))
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *RevisionHandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RevisionHandlerSuite) errorCode(w *httptest.ResponseRecorder) string {
	var resp httputil.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func (s *RevisionHandlerSuite) TestDryRunCreatesBatch() {
	batchID := id.BatchID(uuid.New())
	s.service.EXPECT().RunDryRun(gomock.Any(), models.Scope{Region: "KA-BLR", ScanCap: 50}).
		Return(&models.DryRunResult{
			Batch: &models.Batch{ID: batchID, Status: models.BatchDraft},
			Flags: []*models.Flag{{Type: models.FlagDeceased, Status: models.FlagPending}},
		}, nil)

	w := s.do(http.MethodPost, "/v1/revisions/dry-run", `{"region":"KA-BLR","scan_cap":50}`)
	s.Equal(http.StatusCreated, w.Code)

	var res models.DryRunResult
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	s.Equal(batchID, res.Batch.ID)
	s.Len(res.Flags, 1)
}

func (s *RevisionHandlerSuite) TestDryRunRejectsHugeScanCap() {
	w := s.do(http.MethodPost, "/v1/revisions/dry-run", `{"scan_cap":20000}`)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("validation_error", s.errorCode(w))
}

func (s *RevisionHandlerSuite) TestCommitErrorMapping() {
	batchID := id.BatchID(uuid.New())
	path := "/v1/revisions/" + batchID.String() + "/commit"

	s.Run("committed batch is an invalid transition", func() {
		s.service.EXPECT().CommitBatch(gomock.Any(), batchID).
			Return(nil, dErrors.New(dErrors.CodeInvalidState, "batch is committed"))
		w := s.do(http.MethodPost, path, "")
		s.Equal(http.StatusConflict, w.Code)
		s.Equal("invalid_state_transition", s.errorCode(w))
	})

	s.Run("tampered batch is an integrity failure", func() {
		s.service.EXPECT().CommitBatch(gomock.Any(), batchID).
			Return(nil, dErrors.New(dErrors.CodeIntegrity, "digest mismatch"))
		w := s.do(http.MethodPost, path, "")
		s.Equal(http.StatusUnprocessableEntity, w.Code)
		s.Equal("integrity_failure", s.errorCode(w))
	})

	s.Run("unknown batch", func() {
		s.service.EXPECT().CommitBatch(gomock.Any(), batchID).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "revision batch not found"))
		w := s.do(http.MethodPost, path, "")
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("malformed id", func() {
		w := s.do(http.MethodPost, "/v1/revisions/not-a-uuid/commit", "")
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *RevisionHandlerSuite) TestCommitReturnsCount() {
	batchID := id.BatchID(uuid.New())
	s.service.EXPECT().CommitBatch(gomock.Any(), batchID).
		Return(&models.CommitResult{BatchID: batchID, FlagsApplied: 4, Status: models.BatchCommitted}, nil)

	w := s.do(http.MethodPost, "/v1/revisions/"+batchID.String()+"/commit", "")
	s.Equal(http.StatusOK, w.Code)

	var res models.CommitResult
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	s.Equal(4, res.FlagsApplied)
	s.Equal(models.BatchCommitted, res.Status)
}

func (s *RevisionHandlerSuite) TestCloseFlag() {
	flagID := id.RevisionFlagID(uuid.New())
	s.service.EXPECT().CloseFlag(gomock.Any(), flagID, models.FlagResolved, "merged").
		Return(&models.Flag{ID: flagID, Status: models.FlagResolved}, nil)

	w := s.do(http.MethodPost, "/v1/revisions/flags/"+flagID.String()+"/close", `{"status":"resolved","notes":"merged"}`)
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/v1/revisions/flags/"+flagID.String()+"/close", `{"status":"applied"}`)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RevisionHandlerSuite) TestList() {
	s.service.EXPECT().ListBatches(gomock.Any(), models.BatchDraft, 5).Return([]*models.Batch{}, nil)

	w := s.do(http.MethodGet, "/v1/revisions?status=draft&limit=5", "")
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/v1/revisions?limit=many", "")
	s.Equal(http.StatusBadRequest, w.Code)
}
