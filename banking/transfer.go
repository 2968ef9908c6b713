package banking

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sarchlab/lockstep/hooking"
	"github.com/sarchlab/lockstep/naming"
)

var (
	// ErrInvalidAmount is returned for transfers of zero or negative amounts.
	ErrInvalidAmount = errors.New("transfer amount must be positive")

	// ErrSameAccount is returned for transfers from an account to itself.
	ErrSameAccount = errors.New("transfer source and destination are the same account")

	// ErrMissingAccount is returned when a transfer lacks an endpoint.
	ErrMissingAccount = errors.New("transfer needs a source and a destination")
)

var (
	// HookPosLockWait marks an actor starting to wait for an account lock.
	HookPosLockWait = &hooking.HookPos{Name: "Lock Wait"}

	// HookPosLockAcquired marks an actor obtaining an account lock.
	HookPosLockAcquired = &hooking.HookPos{Name: "Lock Acquired"}

	// HookPosLockReleased marks an actor giving up an account lock.
	HookPosLockReleased = &hooking.HookPos{Name: "Lock Released"}

	// HookPosTransferred marks a completed transfer.
	HookPosTransferred = &hooking.HookPos{Name: "Transferred"}

	// HookPosInsufficientFunds marks a transfer refused for lack of funds.
	HookPosInsufficientFunds = &hooking.HookPos{Name: "Insufficient Funds"}
)

// A TransferRequest asks to move Amount from one account to another.
type TransferRequest struct {
	From   *Account
	To     *Account
	Amount int64

	// Requester names the actor for reporting.
	Requester string
}

// Validate checks the request without touching the accounts.
func (r TransferRequest) Validate() error {
	if r.From == nil || r.To == nil {
		return ErrMissingAccount
	}

	if r.Amount <= 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidAmount, r.Amount)
	}

	if r.From == r.To || r.From.id == r.To.id {
		return fmt.Errorf("%w: %s", ErrSameAccount, r.From)
	}

	return nil
}

func (r TransferRequest) String() string {
	return fmt.Sprintf("%d from %s to %s", r.Amount, r.From.name, r.To.name)
}

// Outcome is the business result of a transfer.
type Outcome int

// Outcomes of a transfer. Rejected is returned together with a validation
// error.
const (
	Rejected Outcome = iota
	Transferred
	InsufficientFunds
)

func (o Outcome) String() string {
	switch o {
	case Rejected:
		return "rejected"
	case Transferred:
		return "transferred"
	case InsufficientFunds:
		return "insufficient funds"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Balances are the endpoint balances right after a transfer was applied.
type Balances struct {
	From int64
	To   int64
}

// A Transferer moves money between accounts.
//
// Transfers are not cancellable. A transfer that is part of a circular wait
// stays parked for the lifetime of the process.
type Transferer struct {
	hooking.HookableBase
	naming.NamedBase

	gap    time.Duration
	jitter time.Duration
	locks  *LockTable
}

// TransferUnordered locks the source account, waits for the gap, then locks
// the destination account. Two concurrent transfers in opposite directions
// over the same accounts deadlock.
func (t *Transferer) TransferUnordered(req TransferRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Rejected, err
	}

	return t.transfer(req, req.From, req.To), nil
}

// TransferOrdered locks the account with the smaller ID first, waits for the
// gap, then locks the other one. It never takes part in a circular wait.
func (t *Transferer) TransferOrdered(req TransferRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Rejected, err
	}

	first, second := req.From, req.To
	if second.id < first.id {
		first, second = second, first
	}

	return t.transfer(req, first, second), nil
}

func (t *Transferer) transfer(req TransferRequest, first, second *Account) Outcome {
	t.lockAccount(req.Requester, first)
	defer t.unlockAccount(req.Requester, first)

	t.pause()

	t.lockAccount(req.Requester, second)
	defer t.unlockAccount(req.Requester, second)

	return t.apply(req)
}

func (t *Transferer) apply(req TransferRequest) Outcome {
	if req.From.balance < req.Amount {
		t.invoke(req.Requester, HookPosInsufficientFunds, req,
			Balances{From: req.From.balance, To: req.To.balance})

		return InsufficientFunds
	}

	req.From.balance -= req.Amount
	req.To.balance += req.Amount

	t.invoke(req.Requester, HookPosTransferred, req,
		Balances{From: req.From.balance, To: req.To.balance})

	return Transferred
}

func (t *Transferer) pause() {
	d := t.gap
	if t.jitter > 0 {
		d += rand.N(t.jitter)
	}

	if d > 0 {
		time.Sleep(d)
	}
}

func (t *Transferer) lockAccount(actor string, a *Account) {
	t.invoke(actor, HookPosLockWait, a.id, a.name)

	if t.locks != nil {
		t.locks.Waiting(actor, a)
	}

	a.lock.Lock()

	if t.locks != nil {
		t.locks.Acquired(actor, a)
	}

	t.invoke(actor, HookPosLockAcquired, a.id, a.name)
}

func (t *Transferer) unlockAccount(actor string, a *Account) {
	if t.locks != nil {
		t.locks.Released(actor, a)
	}

	a.lock.Unlock()

	t.invoke(actor, HookPosLockReleased, a.id, a.name)
}

func (t *Transferer) invoke(actor string, pos *hooking.HookPos, item, detail any) {
	if t.NumHooks() == 0 {
		return
	}

	t.InvokeHook(hooking.HookCtx{
		Domain: t,
		Actor:  actor,
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}

// LockTable returns the table the transferer reports lock ownership to, or
// nil.
func (t *Transferer) LockTable() *LockTable {
	return t.locks
}

// withLockTable returns a copy of t that shares its hooks but tracks locks in
// table.
// TransfererState describes the pacing of a transferer.
type TransfererState struct {
	Name   string
	Gap    time.Duration
	Jitter time.Duration
}

// State returns the transferer settings, which do not change after Build.
func (t *Transferer) State() any {
	return TransfererState{Name: t.Name(), Gap: t.gap, Jitter: t.jitter}
}

func (t *Transferer) withLockTable(table *LockTable) *Transferer {
	c := *t
	c.locks = table

	return &c
}
