package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/handler"
	"github.com/noah-isme/studyquest-api/internal/service"
	"github.com/noah-isme/studyquest-api/internal/store"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)
	return schema
}

func requireContract(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestChatMessageContract(t *testing.T) {
	schema := compileSchema(t, "chat_message.schema.json")
	stack := newChatStack(t)
	group, err := stack.groups.Create(context.Background(), "owner", dto.GroupCreateRequest{Name: "Contracts"})
	require.NoError(t, err)

	resp := doJSON(t, stack.app, http.MethodPost, "/api/v2/chat/groups/"+group.ID+"/messages", "owner", dto.ChatMessageBody{
		Content: "see notes",
		Attachments: []dto.AttachmentPayload{
			{URL: "https://cdn.example.com/notes.pdf", Name: "notes.pdf", MimeType: "application/pdf", SizeBytes: 2048},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	requireContract(t, schema, resp)
}

func TestPaymentVerifyContract(t *testing.T) {
	schema := compileSchema(t, "payment_verify.schema.json")
	app, _ := newPaymentApp(t, &paystackStub{})

	resp := doJSON(t, app, http.MethodGet, "/api/v2/payments/verify/sq-ref1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	requireContract(t, schema, resp)
}

func TestWalletContract(t *testing.T) {
	schema := compileSchema(t, "wallet.schema.json")
	svc, err := service.NewWalletService(store.NewMemoryStore(), validator.New(), 500, zerolog.Nop())
	require.NoError(t, err)

	app := fiber.New()
	handler.NewWalletHandler(svc, zerolog.Nop()).Register(app.Group("/api/v2/wallet", testIdentity))

	resp := doJSON(t, app, http.MethodPost, "/api/v2/wallet/bills", "user-1", dto.BillPaymentRequest{Biller: "data", Customer: "0803", Amount: 200})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, app, http.MethodGet, "/api/v2/wallet", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	requireContract(t, schema, resp)
}
