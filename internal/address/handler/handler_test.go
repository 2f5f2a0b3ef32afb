package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"rollguard/internal/address/handler/mocks"
	"rollguard/internal/address/models"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/httputil"
)

type AddressHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	handler *Handler
}

func TestAddressHandlerSuite(t *testing.T) {
	suite.Run(t, new(AddressHandlerSuite))
}

func (s *AddressHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.handler = New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *AddressHandlerSuite) post(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/addresses/validate", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	s.handler.HandleValidate(w, req)
	return w
}

func (s *AddressHandlerSuite) TestRejectedAddressIsOK() {
	s.service.EXPECT().
		ValidateAddress(gomock.Any(), models.Components{Street: "somewhere"}).
		Return(&models.Result{QualityScore: 0.2, ValidationResult: models.ResultRejected, Flags: []string{models.FlagIncomplete}}, nil)

	w := s.post(`{"street":"somewhere"}`)
	s.Equal(http.StatusOK, w.Code)

	var res models.Result
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	s.Equal(models.ResultRejected, res.ValidationResult)
	s.Equal([]string{models.FlagIncomplete}, res.Flags)
}

func (s *AddressHandlerSuite) TestMalformedBody() {
	w := s.post(`{"street":`)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *AddressHandlerSuite) TestOversizedComponentIsValidationError() {
	w := s.post(`{"postal_code":"12345678901234567890"}`)
	s.Equal(http.StatusBadRequest, w.Code)

	var resp httputil.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("validation_error", resp.Error)
}

func (s *AddressHandlerSuite) TestServiceFailure() {
	s.service.EXPECT().ValidateAddress(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeInternal, "cache unavailable"))

	w := s.post(`{"street":"MG Road"}`)
	s.Equal(http.StatusInternalServerError, w.Code)
}
