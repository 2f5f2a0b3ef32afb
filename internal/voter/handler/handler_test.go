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

	"rollguard/internal/voter/handler/mocks"
	"rollguard/internal/voter/models"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/httputil"
)

type VoterHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestVoterHandlerSuite(t *testing.T) {
	suite.Run(t, new(VoterHandlerSuite))
}

func (s *VoterHandlerSuite) SetupTest() {
	s.service = mocks.NewMockService(gomock.NewController(s.T()))
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *VoterHandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(method, path, bytes.NewBufferString(body)))
	return w
}

const validBody = `{"unique_identifier":"TN/04/118","first_name":"Meena","last_name":"Subramanian",
	"date_of_birth":"1988-11-02","address":{"house_number":"12","street":"Anna Salai","locality":"Teynampet",
	"district":"Chennai","state":"Tamil Nadu","postal_code":"600018"}}`

func (s *VoterHandlerSuite) TestRegisterPendingReview() {
	voterID := id.VoterID(uuid.New())
	s.service.EXPECT().SubmitRegistration(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, reg models.Registration) (*models.SubmitResult, error) {
			s.Equal("Chennai", reg.Address.District)
			return &models.SubmitResult{
				Voter:  &models.Record{ID: voterID, Status: models.StatusPendingReview},
				Status: models.StatusPendingReview,
				Flags:  []string{"last_name.rare_name"},
			}, nil
		})

	w := s.do(http.MethodPost, "/v1/voters", validBody)
	s.Equal(http.StatusCreated, w.Code)

	var res models.SubmitResult
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	s.Equal(models.StatusPendingReview, res.Status)
	s.Equal(voterID, res.Voter.ID)
}

func (s *VoterHandlerSuite) TestRegisterRejectsBadDate() {
	w := s.do(http.MethodPost, "/v1/voters", `{"unique_identifier":"X","first_name":"A","last_name":"B","date_of_birth":"02/11/1988"}`)
	s.Equal(http.StatusBadRequest, w.Code)

	var resp httputil.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("validation_error", resp.Error)
}

func (s *VoterHandlerSuite) TestGetUnknownVoter() {
	voterID := id.VoterID(uuid.New())
	s.service.EXPECT().GetVoter(gomock.Any(), voterID).Return(nil, dErrors.New(dErrors.CodeNotFound, "voter not found"))

	w := s.do(http.MethodGet, "/v1/voters/"+voterID.String(), "")
	s.Equal(http.StatusNotFound, w.Code)
}
