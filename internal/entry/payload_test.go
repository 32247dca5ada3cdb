package entry

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entryPayload = `{"data":{
	"type":"entry",
	"id":"7f1b3c52-2d0c-4a57-9a39-1f0c4c9d2e11",
	"attributes":{"form":{"ref":"f_household","type":"hierarchy"}},
	"relationships":{"parent":{},"branch":{}},
	"entry":{
		"entry_uuid":"7f1b3c52-2d0c-4a57-9a39-1f0c4c9d2e11",
		"created_at":"2026-03-01T10:00:00.000Z",
		"device_id":"dev-1",
		"platform":"Android",
		"title":"HH-001",
		"answers":{"hh_id":{"answer":"HH-001","was_jumped":false}},
		"project_version":"2026-02-01 09:00:00"
	}
}}`

func TestDecodePayload_Entry(t *testing.T) {
	p, err := DecodePayload(strings.NewReader(entryPayload))
	require.NoError(t, err)
	assert.Equal(t, TypeEntry, p.Data.Type)
	assert.Equal(t, "f_household", p.Data.FormRef())
	assert.Equal(t, "HH-001", p.Data.Entry.Answers["hh_id"].Value)
}

func TestDecodePayload_FieldErrors(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{name: "bad id", body: strings.Replace(entryPayload, `"id":"7f1b3c52-2d0c-4a57-9a39-1f0c4c9d2e11"`, `"id":"nope"`, 1), field: "id"},
		{name: "uuid mismatch", body: strings.Replace(entryPayload, `"entry_uuid":"7f1b3c52-2d0c-4a57-9a39-1f0c4c9d2e11"`, `"entry_uuid":"0d6f1d2e-5b1c-4e7f-8a4e-0a3c2b1d9e77"`, 1), field: "entry_uuid"},
		{name: "no form", body: strings.Replace(entryPayload, `"ref":"f_household"`, `"ref":""`, 1), field: "form"},
		{name: "bad answer", body: strings.Replace(entryPayload, `{"answer":"HH-001","was_jumped":false}`, `{"answer":true}`, 1), field: "answers"},
		{name: "branch without owner", body: `{"data":{"type":"branch_entry","id":"0d6f1d2e-5b1c-4e7f-8a4e-0a3c2b1d9e77","attributes":{"form":{"ref":"f"}},"branch_entry":{}}}`, field: "owner_input_ref"},
		{name: "parent without form", body: `{"data":{"type":"entry","id":"0d6f1d2e-5b1c-4e7f-8a4e-0a3c2b1d9e77","attributes":{"form":{"ref":"f"}},"relationships":{"parent":{"data":{"parent_entry_uuid":"7f1b3c52-2d0c-4a57-9a39-1f0c4c9d2e11"}}},"entry":{}}}`, field: "parent_form_ref"},
		{name: "not json", body: `{"data":`, field: "data"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodePayload(strings.NewReader(tc.body))
			var fe *FieldError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tc.field, fe.Field)
		})
	}
}

func TestDecodePayload_BranchEntry(t *testing.T) {
	body := `{"data":{"type":"branch_entry","id":"0d6f1d2e-5b1c-4e7f-8a4e-0a3c2b1d9e77",
		"attributes":{"form":{"ref":"f_household","type":"hierarchy"}},
		"relationships":{"parent":{},"branch":{"data":{"owner_input_ref":"hh_visits","owner_entry_uuid":"7f1b3c52-2d0c-4a57-9a39-1f0c4c9d2e11"}}},
		"branch_entry":{"entry_uuid":"0d6f1d2e-5b1c-4e7f-8a4e-0a3c2b1d9e77","answers":{"v_code":{"answer":"V1","was_jumped":false}}}}}`

	p, err := DecodePayload(strings.NewReader(body))
	require.NoError(t, err)
	assert.True(t, p.Data.Branch())
	assert.Equal(t, "hh_visits", p.Data.OwnerInputRef())
}
