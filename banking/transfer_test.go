package banking

import (
	"math/rand/v2"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/lockstep/hooking"
)

var _ = Describe("TransferRequest", func() {
	a1 := NewAccount(1, "Account1", 100)
	a2 := NewAccount(2, "Account2", 100)

	DescribeTable("validation",
		func(req TransferRequest, expected error) {
			if expected == nil {
				Expect(req.Validate()).To(Succeed())
				return
			}

			Expect(req.Validate()).To(MatchError(expected))
		},
		Entry("valid", TransferRequest{From: a1, To: a2, Amount: 1}, nil),
		Entry("zero amount", TransferRequest{From: a1, To: a2}, ErrInvalidAmount),
		Entry("negative amount", TransferRequest{From: a1, To: a2, Amount: -5}, ErrInvalidAmount),
		Entry("same account", TransferRequest{From: a1, To: a1, Amount: 1}, ErrSameAccount),
		Entry("same ID", TransferRequest{From: a1, To: NewAccount(1, "Copy", 0), Amount: 1}, ErrSameAccount),
		Entry("missing account", TransferRequest{From: a1, Amount: 1}, ErrMissingAccount),
	)

	It("should describe itself", func() {
		req := TransferRequest{From: a1, To: a2, Amount: 7, Requester: "Thread-1"}
		Expect(req.String()).To(Equal("7 from Account1 to Account2"))
	})
})

var _ = Describe("Transferer", func() {
	var (
		mockCtrl *gomock.Controller
		t        *Transferer
		a1, a2   *Account
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		t = MakeBuilder().WithGap(0).Build("Bank")
		a1 = NewAccount(1, "Account1", 1000)
		a2 = NewAccount(2, "Account2", 1000)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should default to a visible gap", func() {
		Expect(MakeBuilder().gap).To(Equal(100 * time.Millisecond))
	})

	for _, ordered := range []bool{false, true} {
		transfer := func(req TransferRequest) (Outcome, error) {
			if ordered {
				return t.TransferOrdered(req)
			}

			return t.TransferUnordered(req)
		}

		desc := "unordered"
		if ordered {
			desc = "ordered"
		}

		Context(desc, func() {
			It("should move money", func() {
				outcome, err := transfer(TransferRequest{From: a2, To: a1, Amount: 300})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome).To(Equal(Transferred))
				Expect(a1.Balance()).To(Equal(int64(1300)))
				Expect(a2.Balance()).To(Equal(int64(700)))
			})

			It("should allow moving the whole balance", func() {
				outcome, err := transfer(TransferRequest{From: a1, To: a2, Amount: 1000})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome).To(Equal(Transferred))
				Expect(a1.Balance()).To(BeZero())
			})

			It("should leave balances alone on insufficient funds", func() {
				outcome, err := transfer(TransferRequest{From: a1, To: a2, Amount: 1001})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome).To(Equal(InsufficientFunds))
				Expect(a1.Balance()).To(Equal(int64(1000)))
				Expect(a2.Balance()).To(Equal(int64(1000)))
			})

			It("should reject invalid requests before locking", func() {
				unlock := LockInOrder(a1, a2)
				defer unlock()

				outcome, err := transfer(TransferRequest{From: a1, To: a2, Amount: 0})

				Expect(err).To(MatchError(ErrInvalidAmount))
				Expect(outcome).To(Equal(Rejected))
			})
		})
	}

	It("should report the lock lifecycle in order", func() {
		hook := NewMockHook(mockCtrl)
		t.AcceptHook(hook)

		var positions []*hooking.HookPos
		var items []any

		hook.EXPECT().Func(gomock.Any()).Times(7).Do(func(ctx hooking.HookCtx) {
			Expect(ctx.Domain).To(BeIdenticalTo(t))
			Expect(ctx.Actor).To(Equal("Thread-2"))
			positions = append(positions, ctx.Pos)
			items = append(items, ctx.Item)
		})

		req := TransferRequest{From: a2, To: a1, Amount: 50, Requester: "Thread-2"}
		_, err := t.TransferOrdered(req)
		Expect(err).ToNot(HaveOccurred())

		Expect(positions).To(Equal([]*hooking.HookPos{
			HookPosLockWait, HookPosLockAcquired,
			HookPosLockWait, HookPosLockAcquired,
			HookPosTransferred,
			HookPosLockReleased, HookPosLockReleased,
		}))
		Expect(items).To(Equal([]any{
			AccountID(1), AccountID(1),
			AccountID(2), AccountID(2),
			req,
			AccountID(2), AccountID(1),
		}))
	})

	It("should take the source lock first when unordered", func() {
		var locked []any
		t.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			if ctx.Pos == HookPosLockAcquired {
				locked = append(locked, ctx.Item)
			}
		}))

		_, err := t.TransferUnordered(TransferRequest{From: a2, To: a1, Amount: 1})
		Expect(err).ToNot(HaveOccurred())

		Expect(locked).To(Equal([]any{AccountID(2), AccountID(1)}))
	})

	It("should report insufficient funds with the untouched balances", func() {
		var detail any
		t.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			if ctx.Pos == HookPosInsufficientFunds {
				detail = ctx.Detail
			}
		}))

		_, err := t.TransferOrdered(TransferRequest{From: a1, To: a2, Amount: 5000})
		Expect(err).ToNot(HaveOccurred())

		Expect(detail).To(Equal(Balances{From: 1000, To: 1000}))
	})

	It("should never deadlock with ordered transfers over many accounts", func() {
		const (
			numAccounts = 8
			numWorkers  = 8
			perWorker   = 300
		)

		t = MakeBuilder().WithGap(0).WithJitter(20 * time.Microsecond).Build("Bank")

		accounts := make([]*Account, numAccounts)
		for i := range accounts {
			accounts[i] = NewAccount(AccountID(i), "Account", 100)
		}

		tasks := make([]func(), numWorkers)
		for w := range tasks {
			tasks[w] = func() {
				defer GinkgoRecover()

				for range perWorker {
					from := rand.IntN(numAccounts)
					to := (from + 1 + rand.IntN(numAccounts-1)) % numAccounts

					_, err := t.TransferOrdered(TransferRequest{
						From:   accounts[from],
						To:     accounts[to],
						Amount: int64(1 + rand.IntN(30)),
					})
					Expect(err).ToNot(HaveOccurred())
				}
			}
		}

		var wg sync.WaitGroup
		stop := make(chan struct{})
		var badTotals []int64

		wg.Add(1)
		go func() {
			defer wg.Done()

			for {
				select {
				case <-stop:
					return
				default:
				}

				var total int64
				for _, b := range Snapshot(accounts...) {
					total += b
				}

				if total != numAccounts*100 {
					badTotals = append(badTotals, total)
				}
			}
		}()

		verdict := DetectDeadlock(20*time.Second, tasks...)
		close(stop)
		wg.Wait()

		Expect(verdict.Deadlocked).To(BeFalse())
		Expect(badTotals).To(BeEmpty())

		var total int64
		for _, a := range accounts {
			Expect(a.Balance()).To(BeNumerically(">=", 0))
			total += a.Balance()
		}

		Expect(total).To(Equal(int64(numAccounts * 100)))
	})
})
