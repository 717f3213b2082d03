package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
}

func (f *fakeAPI) GetParameter(_ context.Context, _ *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("p"), Value: strPtr(`{"k":"v"}`),
	}}}
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, `{"k":"v"}`, v)
}

func TestGetParameter_HappyPath_SecureString(t *testing.T) {
	typeStr := "SecureString"
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("p"), Value: strPtr(`{"k":"v"}`), Type: types.ParameterType(typeStr),
	}}}
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, `{"k":"v"}`, v)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: nil}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameter_ApiError(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.ErrorContains(t, err, "boom")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	api := &fakeAPI{}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

// fakeGetter stubs the Getter interface for Token tests.
type fakeGetter struct {
	val string
	err error
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	return f.val, f.err
}

func TestToken_HappyPath(t *testing.T) {
	g := &fakeGetter{val: `{"token":"secret-value"}`}
	tok, err := Token(context.Background(), g, "/realty-agent/gemini-api-key")
	require.NoError(t, err)
	require.Equal(t, "secret-value", tok)
}

func TestToken_MissingTokenField(t *testing.T) {
	g := &fakeGetter{val: `{"other":"value"}`}
	_, err := Token(context.Background(), g, "/realty-agent/gemini-api-key")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty")
}

func TestToken_MalformedJSON(t *testing.T) {
	g := &fakeGetter{val: `{"broken`}
	_, err := Token(context.Background(), g, "/realty-agent/gemini-api-key")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unmarshal")
}

func TestToken_GetterError(t *testing.T) {
	g := &fakeGetter{err: errors.New("ssm unavailable")}
	_, err := Token(context.Background(), g, "/realty-agent/gemini-api-key")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ssm unavailable")
}

func TestToken_NilGetter(t *testing.T) {
	_, err := Token(context.Background(), nil, "/realty-agent/gemini-api-key")
	require.Error(t, err)
}

func TestToken_EmptyName(t *testing.T) {
	g := &fakeGetter{val: `{"token":"secret-value"}`}
	_, err := Token(context.Background(), g, "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty")
}
