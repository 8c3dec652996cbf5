package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/handler"
	"github.com/noah-isme/studyquest-api/internal/models"
	"github.com/noah-isme/studyquest-api/internal/repository"
	"github.com/noah-isme/studyquest-api/internal/service"
	"github.com/noah-isme/studyquest-api/pkg/paystack"
)

type paystackStub struct {
	initCalls  atomic.Int32
	lastAmount atomic.Int64
	reject     bool
}

func (p *paystackStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/transaction/initialize":
			p.initCalls.Add(1)
			var body paystack.InitializeRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			p.lastAmount.Store(body.Amount)
			if p.reject {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"status":false,"message":"Invalid Email Address Passed"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"status":  true,
				"message": "Authorization URL created",
				"data": map[string]string{
					"authorization_url": "https://checkout.paystack.com/abc",
					"access_code":       "abc",
					"reference":         body.Reference,
				},
			})
		case r.URL.Path == "/transaction/verify/sq-ref1":
			_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"id":1,"status":"success","reference":"sq-ref1","amount":250000,"currency":"NGN","paid_at":"2024-05-01T10:00:00Z","metadata":"{\"userId\":\"user-1\",\"materialId\":42}"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newPaymentApp(t *testing.T, stub *paystackStub) (*fiber.App, *gorm.DB) {
	t.Helper()
	srv := stub.server(t)
	db := setupHandlerDB(t)

	svc, err := service.NewPaymentService(
		paystack.NewClient("sk_test", srv.URL, srv.Client()),
		repository.NewPaymentRepository(db),
		validator.New(),
		service.PaymentServiceConfig{CashbackRate: 0.1},
		zerolog.Nop(),
	)
	require.NoError(t, err)

	app := fiber.New()
	handler.NewPaymentHandler(svc, zerolog.Nop()).Register(app.Group("/api/v2/payments", testIdentity))
	return app, db
}

func TestPaymentInitializeSendsKobo(t *testing.T) {
	stub := &paystackStub{}
	app, _ := newPaymentApp(t, stub)

	resp := doJSON(t, app, http.MethodPost, "/api/v2/payments/initialize", "user-1", dto.PaymentInitializeRequest{Email: "ada@example.com", Amount: 1500.5})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body dto.PaymentInitializeResponse
	decodeResponse(t, resp, &body)
	require.True(t, body.Status)
	require.Equal(t, "https://checkout.paystack.com/abc", body.Data.AuthorizationURL)
	require.NotEmpty(t, body.Data.Reference)
	require.Equal(t, int64(150050), stub.lastAmount.Load())
}

func TestPaymentInitializeValidatesBeforeGateway(t *testing.T) {
	stub := &paystackStub{}
	app, _ := newPaymentApp(t, stub)

	resp := doJSON(t, app, http.MethodPost, "/api/v2/payments/initialize", "", dto.PaymentInitializeRequest{Amount: 100})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body envelope[interface{}]
	decodeResponse(t, resp, &body)
	require.Contains(t, body.Details, "Email")
	require.Zero(t, stub.initCalls.Load())
}

func TestPaymentInitializeSurfacesGatewayMessage(t *testing.T) {
	stub := &paystackStub{reject: true}
	app, _ := newPaymentApp(t, stub)

	resp := doJSON(t, app, http.MethodPost, "/api/v2/payments/initialize", "", dto.PaymentInitializeRequest{Email: "ada@example.com", Amount: 10})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var body envelope[interface{}]
	decodeResponse(t, resp, &body)
	require.Equal(t, "Invalid Email Address Passed", body.Message)
}

func TestPaymentVerifyCreditsCashbackOnce(t *testing.T) {
	app, db := newPaymentApp(t, &paystackStub{})

	for i := 0; i < 2; i++ {
		resp := doJSON(t, app, http.MethodGet, "/api/v2/payments/verify/sq-ref1", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body dto.PaymentVerifyResponse
		decodeResponse(t, resp, &body)
		require.Equal(t, i == 0, body.Data.Recorded)
	}

	var purchases int64
	require.NoError(t, db.Model(&models.Purchase{}).Count(&purchases).Error)
	require.Equal(t, int64(1), purchases)

	resp := doJSON(t, app, http.MethodGet, "/api/v2/payments/rewards", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reward envelope[dto.RewardResponse]
	decodeResponse(t, resp, &reward)
	require.InDelta(t, 250, reward.Data.Balance, 0.001)
}

func TestPaymentVerifyUnknownReference(t *testing.T) {
	app, _ := newPaymentApp(t, &paystackStub{})

	resp := doJSON(t, app, http.MethodGet, "/api/v2/payments/verify/nope", "", nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
