package banking

import (
	"time"
)

// Parameters of the two-account scenario.
const (
	InitialBalance = 1000
	ForwardAmount  = 100
	BackwardAmount = 50
)

// A Scenario runs two opposite transfers over two fresh accounts at the same
// time: Thread-1 moves 100 from Account1 to Account2 while Thread-2 moves 50
// from Account2 to Account1.
type Scenario struct {
	Transferer *Transferer
	Timeout    time.Duration
	Ordered    bool

	// Prepare, when set, is called with the accounts and the lock table of
	// the run before the transfers start.
	Prepare func(accounts [2]*Account, table *LockTable)
}

// A RunReport describes a scenario run.
type RunReport struct {
	Ordered  bool
	Verdict  Verdict
	Accounts [2]*Account

	// Outcomes of Thread-1 and Thread-2. Outcomes of stuck tasks are Rejected.
	Outcomes [2]Outcome

	// Balances are the final balances; nil if the run deadlocked.
	Balances map[AccountID]int64

	// Waits and Cycle describe the blocked actors of a deadlocked run.
	Waits []Wait
	Cycle []string
}

// Run executes the scenario once with new accounts.
func (s Scenario) Run() RunReport {
	a1 := NewAccount(1, "Account1", InitialBalance)
	a2 := NewAccount(2, "Account2", InitialBalance)

	table := NewLockTable()
	t := s.Transferer.withLockTable(table)

	if s.Prepare != nil {
		s.Prepare([2]*Account{a1, a2}, table)
	}

	transfer := t.TransferUnordered
	if s.Ordered {
		transfer = t.TransferOrdered
	}

	requests := [2]TransferRequest{
		{From: a1, To: a2, Amount: ForwardAmount, Requester: "Thread-1"},
		{From: a2, To: a1, Amount: BackwardAmount, Requester: "Thread-2"},
	}

	r := RunReport{
		Ordered:  s.Ordered,
		Accounts: [2]*Account{a1, a2},
	}

	var outcomes [2]Outcome

	tasks := make([]func(), len(requests))
	for i, req := range requests {
		tasks[i] = func() {
			outcomes[i], _ = transfer(req)
		}
	}

	r.Verdict = DetectDeadlock(s.Timeout, tasks...)

	if r.Verdict.Deadlocked {
		r.Waits = table.Waits()
		r.Cycle = table.Cycle()

		return r
	}

	r.Outcomes = outcomes
	r.Balances = Snapshot(a1, a2)

	return r
}
