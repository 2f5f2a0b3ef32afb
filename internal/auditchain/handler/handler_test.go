package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"rollguard/internal/auditchain/handler/mocks"
	"rollguard/internal/auditchain/models"
	id "rollguard/pkg/domain"
)

type AuditHandlerSuite struct {
	suite.Suite
	verifier *mocks.MockVerifier
	history  *mocks.MockHistory
	router   chi.Router
}

func TestAuditHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuditHandlerSuite))
}

func (s *AuditHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.verifier = mocks.NewMockVerifier(ctrl)
	s.history = mocks.NewMockHistory(ctrl)
	s.router = chi.NewRouter()
	New(s.verifier, s.history, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *AuditHandlerSuite) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func (s *AuditHandlerSuite) TestCompromisedChainIsReported() {
	s.verifier.EXPECT().VerifyHashChain(gomock.Any()).Return(&models.Verification{
		VerificationID:  id.VerificationID(uuid.New()),
		TotalBlocks:     10,
		InvalidBlocks:   6,
		FirstInvalidSeq: 5,
		ChainHealth:     models.ChainCompromised,
		VerifiedAt:      time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}, nil)

	w := s.do(http.MethodPost, "/v1/audit/verify")
	s.Equal(http.StatusOK, w.Code)

	var res VerificationResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	s.Equal("compromised", res.ChainHealth)
	s.Equal(10, res.TotalBlocks)
	s.Equal(6, res.InvalidBlocks)
	s.Equal(int64(5), res.FirstInvalidSeq)
}

func (s *AuditHandlerSuite) TestHistory() {
	voterID := uuid.NewString()
	s.history.EXPECT().History(gomock.Any(), models.EntityVoter, voterID).Return([]*models.Entry{{
		Seq:     1,
		ID:      id.AuditEntryID(uuid.New()),
		Action:  models.ActionVoterRegistered,
		Actor:   "clerk-9",
		Details: `{"status":"active"}`,
	}}, nil)

	w := s.do(http.MethodGet, "/v1/audit/history/voter/"+voterID)
	s.Equal(http.StatusOK, w.Code)

	var res struct {
		Entries []EntryResponse `json:"entries"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	s.Require().Len(res.Entries, 1)
	s.JSONEq(`{"status":"active"}`, string(res.Entries[0].Details))
}

func (s *AuditHandlerSuite) TestBlocksMalformedID() {
	w := s.do(http.MethodGet, "/v1/audit/verifications/nope/blocks")
	s.Equal(http.StatusBadRequest, w.Code)
}
