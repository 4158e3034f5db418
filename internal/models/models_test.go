package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleIDAcceptsStringsAndNumbers(t *testing.T) {
	tests := []struct {
		body string
		want FlexibleID
	}{
		{`{"data":{"id":"123"}}`, "123"},
		{`{"data":{"id":123}}`, "123"},
		{`{"data":{"id":null}}`, ""},
		{`{"data":{}}`, ""},
	}
	for _, tt := range tests {
		var evt WebhookEvent
		require.NoError(t, json.Unmarshal([]byte(tt.body), &evt), tt.body)
		assert.Equal(t, tt.want, evt.Data.ID, tt.body)
	}

	var evt WebhookEvent
	assert.Error(t, json.Unmarshal([]byte(`{"data":{"id":true}}`), &evt))
}

func TestRequestRefsAcceptNumbers(t *testing.T) {
	var req AddMemberRequest
	require.NoError(t, json.Unmarshal([]byte(`{"owner_id":1,"name":"Ana","phone":"11999999999"}`), &req))
	assert.Equal(t, FlexibleID("1"), req.OwnerID)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Ativo", StatusLabel(PlanStatusApproved))
	assert.Equal(t, "Inativo", StatusLabel(""))
	assert.Equal(t, "Expirado", StatusLabel(PlanStatusExpired))
	assert.Equal(t, "in_process", StatusLabel("in_process"))
}
