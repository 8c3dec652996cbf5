package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	nanoid "github.com/jaevor/go-nanoid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/observability"
	"github.com/noah-isme/studyquest-api/internal/store"
)

// ErrInsufficientFunds indicates a bill larger than the wallet balance.
var ErrInsufficientFunds = errors.New("insufficient wallet balance")

const walletHistoryLimit = 100

// WalletService manages per-user wallets kept in the key/value store.
type WalletService interface {
	Balance(ctx context.Context, userID string) (dto.WalletResponse, error)
	TopUp(ctx context.Context, userID string, payload dto.WalletTopUpRequest) (dto.WalletResponse, error)
	PayBill(ctx context.Context, userID string, payload dto.BillPaymentRequest) (dto.WalletTransaction, error)
}

type walletState struct {
	Balance      float64                 `json:"balance"`
	Transactions []dto.WalletTransaction `json:"transactions"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

type walletService struct {
	store          store.Store
	validator      *validator.Validate
	openingBalance float64
	logger         zerolog.Logger
	reference      func() string
	now            func() time.Time
}

// NewWalletService constructs a wallet service. New wallets start with openingBalance.
func NewWalletService(kv store.Store, validate *validator.Validate, openingBalance float64, logger zerolog.Logger) (WalletService, error) {
	generate, err := nanoid.CustomASCII(referenceAlphabet, 12)
	if err != nil {
		return nil, fmt.Errorf("init wallet reference generator: %w", err)
	}

	return &walletService{
		store:          kv,
		validator:      validate,
		openingBalance: openingBalance,
		logger:         logger.With().Str("component", "wallet_service").Logger(),
		reference:      func() string { return "wl-" + generate() },
		now:            time.Now,
	}, nil
}

func walletKey(userID string) string {
	return "wallet:" + userID
}

func (s *walletService) opening() walletState {
	return walletState{Balance: s.openingBalance, Transactions: []dto.WalletTransaction{}, UpdatedAt: s.now().UTC()}
}

func (s *walletService) Balance(ctx context.Context, userID string) (dto.WalletResponse, error) {
	state, err := store.Ensure(ctx, s.store, walletKey(userID), s.opening())
	if err != nil {
		return dto.WalletResponse{}, fmt.Errorf("load wallet: %w", err)
	}
	return walletResponse(userID, state), nil
}

func (s *walletService) TopUp(ctx context.Context, userID string, payload dto.WalletTopUpRequest) (dto.WalletResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.WalletResponse{}, err
	}

	state, err := store.Mutate(ctx, s.store, walletKey(userID), s.opening(), func(state *walletState) error {
		state.Balance = roundNaira(state.Balance + payload.Amount)
		s.record(state, dto.WalletTransaction{Type: dto.WalletTxTopUp, Amount: payload.Amount})
		return nil
	})
	if err != nil {
		observability.WalletOperations().WithLabelValues(dto.WalletTxTopUp, "failed").Inc()
		return dto.WalletResponse{}, fmt.Errorf("top up wallet: %w", err)
	}

	observability.WalletOperations().WithLabelValues(dto.WalletTxTopUp, "ok").Inc()
	return walletResponse(userID, state), nil
}

func (s *walletService) PayBill(ctx context.Context, userID string, payload dto.BillPaymentRequest) (dto.WalletTransaction, error) {
	payload.Customer = strings.TrimSpace(payload.Customer)
	if err := s.validator.Struct(payload); err != nil {
		return dto.WalletTransaction{}, err
	}

	var receipt dto.WalletTransaction
	_, err := store.Mutate(ctx, s.store, walletKey(userID), s.opening(), func(state *walletState) error {
		if state.Balance < payload.Amount {
			return ErrInsufficientFunds
		}
		state.Balance = roundNaira(state.Balance - payload.Amount)
		receipt = s.record(state, dto.WalletTransaction{
			Type:     dto.WalletTxBill,
			Biller:   payload.Biller,
			Customer: payload.Customer,
			Amount:   payload.Amount,
		})
		return nil
	})
	if err != nil {
		observability.WalletOperations().WithLabelValues(dto.WalletTxBill, "failed").Inc()
		if errors.Is(err, ErrInsufficientFunds) {
			return dto.WalletTransaction{}, err
		}
		return dto.WalletTransaction{}, fmt.Errorf("pay bill: %w", err)
	}

	observability.WalletOperations().WithLabelValues(dto.WalletTxBill, "ok").Inc()
	s.logger.Info().Str("user_id", userID).Str("biller", payload.Biller).Str("reference", receipt.Reference).Msg("bill paid")
	return receipt, nil
}

func (s *walletService) record(state *walletState, tx dto.WalletTransaction) dto.WalletTransaction {
	now := s.now().UTC()
	tx.Reference = s.reference()
	tx.BalanceAfter = state.Balance
	tx.CreatedAt = now
	state.Transactions = append(state.Transactions, tx)
	if len(state.Transactions) > walletHistoryLimit {
		state.Transactions = state.Transactions[len(state.Transactions)-walletHistoryLimit:]
	}
	state.UpdatedAt = now
	return tx
}

func walletResponse(userID string, state walletState) dto.WalletResponse {
	transactions := state.Transactions
	if transactions == nil {
		transactions = []dto.WalletTransaction{}
	}
	return dto.WalletResponse{
		UserID:       userID,
		Balance:      state.Balance,
		Transactions: transactions,
		UpdatedAt:    state.UpdatedAt,
	}
}

func roundNaira(amount float64) float64 {
	return math.Round(amount*100) / 100
}
