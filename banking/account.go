// Package banking moves money between accounts that are each guarded by their
// own mutex.
//
// Two transfer strategies are provided. The unordered one locks the source
// account first and deadlocks when two transfers run in opposite directions.
// The ordered one always locks the account with the smaller ID first and
// cannot deadlock, no matter how many transfers and accounts are involved.
package banking

import (
	"cmp"
	"fmt"
	"log"
	"slices"

	"github.com/sarchlab/lockstep/syncutil"
)

// AccountID identifies an account. IDs define the global lock order.
type AccountID int

// An Account holds a balance.
type Account struct {
	id   AccountID
	name string

	lock    syncutil.Mutex
	balance int64
}

// NewAccount creates an account with an initial balance.
func NewAccount(id AccountID, name string, balance int64) *Account {
	return &Account{id: id, name: name, balance: balance}
}

// ID returns the ID of the account.
func (a *Account) ID() AccountID {
	return a.id
}

// Name returns the display name of the account.
func (a *Account) Name() string {
	return a.name
}

// Balance returns the current balance. It waits for any transfer holding the
// account to finish.
func (a *Account) Balance() int64 {
	a.lock.Lock()
	defer a.lock.Unlock()

	return a.balance
}

// TryBalance returns the balance if the account is not locked by a transfer.
func (a *Account) TryBalance() (int64, bool) {
	if !a.lock.TryLock() {
		return 0, false
	}
	defer a.lock.Unlock()

	return a.balance, true
}

// AccountState is a copy of an account. Balance is zero when Locked.
type AccountState struct {
	ID      AccountID
	Name    string
	Balance int64
	Locked  bool
}

// State reads the account without waiting for a transfer holding it.
func (a *Account) State() any {
	balance, ok := a.TryBalance()

	return AccountState{
		ID:      a.id,
		Name:    a.name,
		Balance: balance,
		Locked:  !ok,
	}
}

func (a *Account) String() string {
	return fmt.Sprintf("%s(id=%d)", a.name, a.id)
}

// LockInOrder locks all the given accounts in ascending ID order and returns
// a function that unlocks them in the reverse order. An account passed more
// than once is locked once. Distinct accounts must have distinct IDs.
func LockInOrder(accounts ...*Account) (unlock func()) {
	ordered := sortedUnique(accounts)

	for _, a := range ordered {
		a.lock.Lock()
	}

	return func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			ordered[i].lock.Unlock()
		}
	}
}

// Snapshot reads the balances of all accounts at one instant.
func Snapshot(accounts ...*Account) map[AccountID]int64 {
	unlock := LockInOrder(accounts...)
	defer unlock()

	balances := make(map[AccountID]int64, len(accounts))
	for _, a := range accounts {
		balances[a.id] = a.balance
	}

	return balances
}

func sortedUnique(accounts []*Account) []*Account {
	ordered := slices.Clone(accounts)
	slices.SortFunc(ordered, func(a, b *Account) int {
		return cmp.Compare(a.id, b.id)
	})

	ordered = slices.Compact(ordered)

	for i := 1; i < len(ordered); i++ {
		if ordered[i].id == ordered[i-1].id {
			log.Panicf("accounts %s and %s share an ID", ordered[i-1], ordered[i])
		}
	}

	return ordered
}
