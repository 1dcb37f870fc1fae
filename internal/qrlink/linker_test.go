package qrlink

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "digimenu/internal/errors"
)

func testLinker() *Linker {
	return NewLinker(Payee{VPA: "7993549539@ybl", Name: "Hotel", Currency: "INR"})
}

func TestEncodeSessionURI_Golden(t *testing.T) {
	uri, err := testLinker().EncodeSessionURI(5, "1041", "S1041", decimal.NewFromInt(250))
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "session_uri", []byte(uri))
}

func TestEncodeSessionURI_Deterministic(t *testing.T) {
	l := testLinker()
	a, err := l.EncodeSessionURI(3, "1042", "7731", decimal.RequireFromString("99.5"))
	require.NoError(t, err)
	b, err := l.EncodeSessionURI(3, "1042", "7731", decimal.RequireFromString("99.50"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEncodeSessionURI_Validation(t *testing.T) {
	_, err := testLinker().EncodeSessionURI(0, "", "", decimal.NewFromInt(-1))

	ve, ok := apperrors.IsValidationError(err)
	require.True(t, ok)
	assert.Len(t, ve.Details, 4)
}

func TestDecode_RoundTrip(t *testing.T) {
	l := NewLinker(Payee{VPA: "cafe@upi", Name: "Sea View Cafe", Currency: "INR"})
	uri, err := l.EncodeSessionURI(12, "1042", "7731", decimal.RequireFromString("180.5"))
	require.NoError(t, err)

	res, err := Decode(uri)
	require.NoError(t, err)
	require.Equal(t, KindSession, res.Kind)
	assert.Equal(t, 12, res.Session.Table)
	assert.Equal(t, "1042", res.Session.OrderNumber)
	assert.Equal(t, "7731", res.Session.ServeCode)
	assert.Equal(t, "Sea View Cafe", res.Session.PayeeName)
	assert.Equal(t, "cafe@upi", res.Session.Payee)
	assert.True(t, res.Session.Amount.Equal(decimal.RequireFromString("180.50")))
}

func TestDecode_Classification(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    Kind
		wantErr error
	}{
		{name: "external link", raw: "https://example.com/random", kind: KindLink},
		{name: "plain text", raw: "hello table", kind: KindLink},
		{name: "upi without order", raw: "upi://pay?pa=someone@ybl&am=10", kind: KindLink},
		{name: "upi other host", raw: "upi://mandate?oid=1&tn=Table1&scode=x", kind: KindLink},
		{name: "session", raw: "upi://pay?pa=a@b&tn=Table2&oid=1050&scode=Q1", kind: KindSession},
		{name: "empty", raw: "   ", wantErr: ErrEmptyPayload},
		{name: "missing table", raw: "upi://pay?oid=1050&scode=Q1", wantErr: ErrMalformedSession},
		{name: "bad table", raw: "upi://pay?oid=1050&tn=TableX&scode=Q1", wantErr: ErrMalformedSession},
		{name: "zero table", raw: "upi://pay?oid=1050&tn=Table0&scode=Q1", wantErr: ErrMalformedSession},
		{name: "missing serve code", raw: "upi://pay?oid=1050&tn=Table2", wantErr: ErrMalformedSession},
		{name: "bad amount", raw: "upi://pay?oid=1050&tn=Table2&scode=Q1&am=lots", wantErr: ErrMalformedSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Decode(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, res.Kind)
		})
	}
}

func TestDecode_LinkKeepsText(t *testing.T) {
	res, err := Decode("https://example.com/random")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/random", res.Link)
	assert.Nil(t, res.Session)
}

func TestRenderPNG(t *testing.T) {
	png, err := RenderPNG("upi://pay?pa=a@b&tn=Table2&oid=1050&scode=Q1", 256)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])

	_, err = RenderPNG("", 256)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}
