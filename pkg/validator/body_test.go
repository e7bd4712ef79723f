package validator

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
)

type lineReq struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type sampleReq struct {
	Email string    `json:"email" validate:"required,email"`
	Items []lineReq `json:"items" validate:"required,min=1,dive"`
}

func TestDecodeJSONBodyValid(t *testing.T) {
	body := `{"email":"a@b.tw","items":[{"product_id":"7f1c2d7e-3a39-4f3e-9a55-0b7f7d1b1a11","quantity":2}]}`
	r := httptest.NewRequest("POST", "/", strings.NewReader(body))

	var req sampleReq
	require.NoError(t, DecodeJSONBody(r, &req))
	assert.Equal(t, 2, req.Items[0].Quantity)
}

func TestDecodeJSONBodyReportsFieldPaths(t *testing.T) {
	body := `{"email":"nope","items":[{"product_id":"x","quantity":0}]}`
	r := httptest.NewRequest("POST", "/", strings.NewReader(body))

	var req sampleReq
	err := DecodeJSONBody(r, &req)
	typed := apperror.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperror.CodeValidation, typed.Code())

	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a valid email", details["email"])
	assert.Equal(t, "must be a valid uuid", details["items[0].product_id"])
	assert.Equal(t, "must be greater than 0", details["items[0].quantity"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"a@b.tw","price":1}`))

	var req sampleReq
	err := DecodeJSONBody(r, &req)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestValidationMessageFollowsDefaultLocale(t *testing.T) {
	prev := i18n.Default()
	t.Cleanup(func() { i18n.SetDefault(prev) })
	i18n.SetDefault(i18n.New("zh-TW"))

	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"nope","items":[]}`))
	var req sampleReq
	typed := apperror.As(DecodeJSONBody(r, &req))
	require.NotNil(t, typed)
	assert.Equal(t, "欄位驗證失敗", typed.Message())

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{`))
	typed = apperror.As(DecodeJSONBody(r, &req))
	require.NotNil(t, typed)
	assert.Equal(t, "請求內容格式錯誤", typed.Message())
}
