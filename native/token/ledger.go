package token

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"chowfast/core/events"
	"chowfast/core/state"
)

var (
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrInvalidAmount       = errors.New("token: amount must be positive")
	ErrBalanceOverflow     = errors.New("token: balance overflow")
	ErrUnknownAsset        = errors.New("token: unknown asset")
	ErrNotAuthorized       = errors.New("token: transfer not authorized")
)

// AssetAddress derives the identity of a payment asset from its symbol.
func AssetAddress(symbol string) [20]byte {
	var out [20]byte
	digest := ethcrypto.Keccak256([]byte("asset:" + state.NormalizeSymbol(symbol)))
	copy(out[:], digest[12:])
	return out
}

type ledgerState interface {
	Token(symbol string) (*state.TokenMetadata, error)
	TokenSymbolByAddress(address [20]byte) (string, bool, error)
	SetTokenSupply(symbol string, supply *big.Int) error
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
}

// Authorizer answers whether an account approved the running invocation.
type Authorizer interface {
	RequireAuth(addr [20]byte) error
}

// Ledger is the balance book of a single payment asset.
type Ledger struct {
	symbol  string
	state   ledgerState
	auth    Authorizer
	emitter events.Emitter
}

// NewLedger binds a ledger to a registered token. A nil emitter discards
// events.
func NewLedger(symbol string, st ledgerState, auth Authorizer, emitter events.Emitter) (*Ledger, error) {
	if st == nil {
		return nil, errors.New("token: state not configured")
	}
	meta, err := st.Token(symbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, state.NormalizeSymbol(symbol))
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Ledger{symbol: meta.Symbol, state: st, auth: auth, emitter: emitter}, nil
}

// LedgerForAddress resolves an asset address and binds a ledger to it.
func LedgerForAddress(address [20]byte, st ledgerState, auth Authorizer, emitter events.Emitter) (*Ledger, error) {
	if st == nil {
		return nil, errors.New("token: state not configured")
	}
	symbol, ok, err := st.TokenSymbolByAddress(address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrUnknownAsset, address)
	}
	return NewLedger(symbol, st, auth, emitter)
}

// Symbol returns the canonical token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Balance returns the balance held by account.
func (l *Ledger) Balance(account [20]byte) (*big.Int, error) {
	return l.state.Balance(account[:], l.symbol)
}

// Transfer moves amount from one account to another. The sender must have
// approved the running invocation.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if l.auth == nil {
		return ErrNotAuthorized
	}
	if err := l.auth.RequireAuth(from); err != nil {
		return fmt.Errorf("%w: %v", ErrNotAuthorized, err)
	}
	fromBal, err := l.Balance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal, amount)
	}
	if from != to {
		toBal, err := l.Balance(to)
		if err != nil {
			return err
		}
		credited, err := addChecked(toBal, amount)
		if err != nil {
			return err
		}
		if err := l.state.SetBalance(from[:], l.symbol, new(big.Int).Sub(fromBal, amount)); err != nil {
			return err
		}
		if err := l.state.SetBalance(to[:], l.symbol, credited); err != nil {
			return err
		}
	}
	l.emitter.Emit(events.Transfer{Asset: l.symbol, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Mint credits new units to an account and grows the supply. It performs no
// authorization and is only reachable from genesis.
func (l *Ledger) Mint(to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	meta, err := l.state.Token(l.symbol)
	if err != nil {
		return err
	}
	supply, err := addChecked(meta.Supply, amount)
	if err != nil {
		return err
	}
	balance, err := l.Balance(to)
	if err != nil {
		return err
	}
	credited, err := addChecked(balance, amount)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(to[:], l.symbol, credited); err != nil {
		return err
	}
	if err := l.state.SetTokenSupply(l.symbol, supply); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{
		Token:  l.symbol,
		Total:  supply,
		Delta:  new(big.Int).Set(amount),
		Reason: events.SupplyReasonGenesis,
	})
	return nil
}

func addChecked(a, b *big.Int) (*big.Int, error) {
	if a == nil {
		a = big.NewInt(0)
	}
	x, overflow := uint256.FromBig(a)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	y, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return sum.ToBig(), nil
}
