package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/cuemby/lookout/pkg/transport"
	"github.com/cuemby/lookout/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func validRecord(id string) types.NodeRecord {
	return types.NodeRecord{
		ID:           id,
		Name:         "Camera " + id,
		BaseURL:      "http://10.1.2.3:8000",
		Transport:    types.TransportHTTP,
		Auth:         &types.Auth{Type: types.AuthNone},
		Labels:       map[string]string{"site": "lab"},
		Capabilities: []string{"stream"},
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *types.NodeRecord)
		field   string
		wantErr bool
	}{
		{name: "valid", mutate: func(r *types.NodeRecord) {}},
		{name: "blank id", mutate: func(r *types.NodeRecord) { r.ID = "  " }, field: "id", wantErr: true},
		{name: "blank name", mutate: func(r *types.NodeRecord) { r.Name = "" }, field: "name", wantErr: true},
		{name: "missing auth", mutate: func(r *types.NodeRecord) { r.Auth = nil }, field: "auth", wantErr: true},
		{name: "nil labels", mutate: func(r *types.NodeRecord) { r.Labels = nil }, field: "labels", wantErr: true},
		{name: "nil capabilities", mutate: func(r *types.NodeRecord) { r.Capabilities = nil }, field: "capabilities", wantErr: true},
		{name: "blank capability", mutate: func(r *types.NodeRecord) { r.Capabilities = []string{"ok", " "} }, field: "capabilities", wantErr: true},
		{name: "bearer without token", mutate: func(r *types.NodeRecord) { r.Auth = &types.Auth{Type: types.AuthBearer} }, field: "auth.token", wantErr: true},
		{name: "unknown auth", mutate: func(r *types.NodeRecord) { r.Auth = &types.Auth{Type: "digest"} }, field: "auth.type", wantErr: true},
		{name: "bad discovery source", mutate: func(r *types.NodeRecord) { r.Discovery = &types.Discovery{Source: "other"} }, field: "discovery.source", wantErr: true},
		{name: "docker url for http", mutate: func(r *types.NodeRecord) { r.BaseURL = "docker://h:2375/cam" }, field: "base_url", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord("cam-1")
			tt.mutate(&rec)

			_, err := ValidateRecord(rec, fixedNow)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidateRecordNormalises(t *testing.T) {
	rec := validRecord(" cam-1 ")
	rec.Name = "  Porch  "

	out, err := ValidateRecord(rec, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "cam-1", out.ID)
	assert.Equal(t, "Porch", out.Name)
	assert.Equal(t, types.Timestamp(fixedNow), out.LastSeen)
}

func TestValidateRecordUnsupportedTransport(t *testing.T) {
	rec := validRecord("cam-1")
	rec.Transport = "rtsp"

	_, err := ValidateRecord(rec, fixedNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrUnsupportedTransport)
}

func TestValidateRecordMigratesBasicAuth(t *testing.T) {
	rec := validRecord("cam-1")
	rec.Auth = &types.Auth{Type: types.AuthBasic, Token: "T", Username: "u", Password: "p"}

	out, err := ValidateRecord(rec, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, &types.Auth{Type: types.AuthBearer, Token: "T"}, out.Auth)
}

func TestValidateRecordRejectsBasicAuthWithoutToken(t *testing.T) {
	rec := validRecord("cam-1")
	rec.Auth = &types.Auth{Type: types.AuthBasic, Username: "u", Password: "p"}

	_, err := ValidateRecord(rec, fixedNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be auto-migrated")
}

func TestValidatePatchChecksOnlyPresentFields(t *testing.T) {
	out, err := ValidatePatch(types.NodePatch{Name: types.Ptr("  New name ")})
	require.NoError(t, err)
	require.NotNil(t, out.Name)
	assert.Equal(t, "New name", *out.Name)
	assert.Nil(t, out.BaseURL)
	assert.Nil(t, out.Labels)

	_, err = ValidatePatch(types.NodePatch{Name: types.Ptr("")})
	assert.True(t, IsValidation(err))

	// base_url alone is not checked against a transport it does not carry
	_, err = ValidatePatch(types.NodePatch{BaseURL: types.Ptr("docker://h:2375/cam")})
	assert.NoError(t, err)

	_, err = ValidatePatch(types.NodePatch{
		BaseURL:   types.Ptr("docker://h:2375/cam"),
		Transport: types.Ptr(types.TransportHTTP),
	})
	assert.True(t, IsValidation(err))
}
