package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeTextEnvelope(t *testing.T) {
	in := Envelope{
		WID:          "3EB0ABC123",
		ConnectionID: "conn1",
		CompanyID:    "company1",
		RemoteID:     "5511999990000",
		SenderName:   "Maria",
		Timestamp:    time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		QuotedWID:    "3EB0DEF456",
		Content:      Text{Body: "oi, tudo bem?"},
	}

	data, err := EncodeEnvelope(in)
	require.NoError(t, err)

	out, err := DecodeEnvelope(data)
	require.NoError(t, err)

	assert.Equal(t, in.WID, out.WID)
	assert.Equal(t, in.ConnectionID, out.ConnectionID)
	assert.Equal(t, in.CompanyID, out.CompanyID)
	assert.Equal(t, in.SenderName, out.SenderName)
	assert.Equal(t, in.QuotedWID, out.QuotedWID)
	assert.True(t, in.Timestamp.Equal(out.Timestamp))

	text, ok := out.Content.(Text)
	require.True(t, ok)
	assert.Equal(t, "oi, tudo bem?", text.Body)

	// a cópia bruta fica disponível para auditoria
	assert.JSONEq(t, string(data), string(out.Raw))
}

func TestEncodeDecodeMediaEnvelope(t *testing.T) {
	in := Envelope{
		WID:          "3EB0MEDIA1",
		ConnectionID: "conn1",
		CompanyID:    "company1",
		RemoteID:     "5511999990000",
		Content: Media{
			MediaKind: "image",
			Caption:   "segue a foto",
			URL:       "https://cdn.acme.com/foto.jpg",
			Mimetype:  "image/jpeg",
		},
	}

	data, err := EncodeEnvelope(in)
	require.NoError(t, err)
	out, err := DecodeEnvelope(data)
	require.NoError(t, err)

	media, ok := out.Content.(Media)
	require.True(t, ok)
	assert.Equal(t, "image", media.MediaKind)
	assert.Equal(t, "segue a foto", media.Caption)
}

func TestEncodeDecodeEditEnvelope(t *testing.T) {
	in := Envelope{
		WID:          "3EB0EDIT1",
		ConnectionID: "conn1",
		CompanyID:    "company1",
		RemoteID:     "5511999990000",
		Content:      Edit{TargetWID: "3EB0ABC123", NewBody: "corrigido"},
	}

	data, err := EncodeEnvelope(in)
	require.NoError(t, err)
	out, err := DecodeEnvelope(data)
	require.NoError(t, err)

	edit, ok := out.Content.(Edit)
	require.True(t, ok)
	assert.Equal(t, "3EB0ABC123", edit.TargetWID)
	assert.Equal(t, "corrigido", edit.NewBody)
}

func TestDecodeUnknownKindSurvives(t *testing.T) {
	data := []byte(`{"wid":"w1","connectionId":"conn1","companyId":"company1","remoteId":"r1","timestamp":"2026-08-30T10:00:00Z","contentKind":"poll","content":{"question":"?"}}`)

	out, err := DecodeEnvelope(data)
	require.NoError(t, err)

	unknown, ok := out.Content.(Unknown)
	require.True(t, ok, "kind não mapeado vira Unknown em vez de erro")
	assert.Equal(t, "poll", unknown.TypeName)
}

func TestDecodeStubEnvelopeWithoutContent(t *testing.T) {
	in := Envelope{
		WID:          "stub1",
		ConnectionID: "conn1",
		CompanyID:    "company1",
		RemoteID:     "5511999990000",
		StubType:     StubRevoke,
	}

	data, err := EncodeEnvelope(in)
	require.NoError(t, err)
	out, err := DecodeEnvelope(data)
	require.NoError(t, err)

	assert.Equal(t, StubRevoke, out.StubType)
	assert.Nil(t, out.Content)
}

func TestDecodeMalformedPayloadFails(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"wid":`))
	assert.Error(t, err)
}
