package rest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFalsyEnvelopeErrors(t *testing.T) {
	for _, raw := range []string{"", "null", "false", "0", `""`} {
		require.True(t, falsy(json.RawMessage(raw)), "expected %q to be falsy", raw)
	}
	for _, raw := range []string{"true", "1", `"boom"`, `{"message":"x"}`} {
		require.False(t, falsy(json.RawMessage(raw)), "expected %q to be truthy", raw)
	}
}

func TestNormalizeErrorWrapsTransportFailures(t *testing.T) {
	err := normalizeError(errors.New("connection refused"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, CodeNetwork, apiErr.Code)
	require.Equal(t, "connection refused", apiErr.Message)
}

func TestNormalizeErrorPassesCancellationThrough(t *testing.T) {
	require.ErrorIs(t, normalizeError(context.Canceled), context.Canceled)

	var apiErr *APIError
	require.False(t, errors.As(normalizeError(context.Canceled), &apiErr))
}

func TestNormalizeErrorKeepsAPIErrors(t *testing.T) {
	original := &APIError{Message: "bad request", Status: 400, Code: CodeAPI}
	err := normalizeError(original)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Same(t, original, apiErr)
}

func TestErrorMessageShapes(t *testing.T) {
	require.Equal(t, "plain", errorMessage(json.RawMessage(`"plain"`), 500))
	require.Equal(t, "from object", errorMessage(json.RawMessage(`{"message":"from object"}`), 500))
	require.Equal(t, "Internal Server Error", errorMessage(json.RawMessage(`true`), 500))
}

func TestDecodeEnvelopeVariants(t *testing.T) {
	result, err := decodeEnvelope(200, []byte(`{"err":0,"result":[1,2]}`))
	require.NoError(t, err)
	require.JSONEq(t, `[1,2]`, string(result))

	result, err = decodeEnvelope(200, []byte(`{"plain":"payload"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"plain":"payload"}`, string(result))

	_, err = decodeEnvelope(200, []byte(`{"err":"boom"}`))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "boom", apiErr.Message)

	_, err = decodeEnvelope(502, []byte(`not json`))
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 502, apiErr.Status)
	require.Equal(t, "Bad Gateway", apiErr.Message)
}
