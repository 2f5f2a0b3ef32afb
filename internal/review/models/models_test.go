package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvidenceValidate(t *testing.T) {
	ok := ForAddressCluster(AddressClusterEvidence{AddressDigest: "d", VoterCount: 9})
	require.NoError(t, ok.Validate())

	missing := Evidence{Type: TypeDocumentCheck}
	assert.Error(t, missing.Validate())

	mixed := ForNameVerification(NameVerificationEvidence{Name: "x"})
	mixed.AddressCluster = &AddressClusterEvidence{}
	assert.ErrorIs(t, mixed.Validate(), errEvidenceMismatch)

	unknown := Evidence{Type: "palm_reading"}
	assert.Error(t, unknown.Validate())

	badExt := ok
	badExt.Extensions = json.RawMessage(`{not json`)
	assert.Error(t, badExt.Validate())
}

func TestEvidenceRoundTripKeepsOnlyTaggedPayload(t *testing.T) {
	ev := ForNameVerification(NameVerificationEvidence{Field: "first_name", Name: "Jhon", Score: 0.62})
	ev.Extensions = json.RawMessage(`{"source":"kiosk"}`)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "address_cluster")

	var back Evidence
	require.NoError(t, json.Unmarshal(raw, &back))
	require.NoError(t, back.Validate())
	assert.Equal(t, "Jhon", back.NameVerification.Name)
	assert.JSONEq(t, `{"source":"kiosk"}`, string(back.Extensions))
}

func TestTransitions(t *testing.T) {
	for _, s := range []Status{StatusOpen, StatusEscalated, StatusNeedsMoreInfo, StatusInProgress} {
		assert.True(t, s.CanAssign(), s)
	}
	assert.False(t, StatusResolved.CanAssign())
	assert.False(t, StatusRejected.CanAssign())

	assert.True(t, StatusInProgress.CanResolve())
	for _, s := range []Status{StatusOpen, StatusResolved, StatusRejected, StatusEscalated} {
		assert.False(t, s.CanResolve(), s)
	}
}

func TestActionStatus(t *testing.T) {
	cases := map[Action]Status{
		ActionApproved:      StatusResolved,
		ActionRejected:      StatusRejected,
		ActionEscalated:     StatusEscalated,
		ActionNeedsMoreInfo: StatusNeedsMoreInfo,
	}
	for action, want := range cases {
		got, ok := action.ResultingStatus()
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := Action("shrug").ResultingStatus()
	assert.False(t, ok)
}
