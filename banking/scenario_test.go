package banking

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Scenario", func() {
	It("should deadlock the unordered transfers almost every time", func() {
		const trials = 20

		s := Scenario{
			Transferer: MakeBuilder().WithGap(20 * time.Millisecond).Build("Bank"),
			Timeout:    300 * time.Millisecond,
		}

		deadlocked := 0
		for range trials {
			r := s.Run()
			if r.Verdict.Deadlocked {
				deadlocked++
			}
		}

		Expect(deadlocked).To(BeNumerically(">=", trials*95/100))
	})

	It("should explain an unordered deadlock", func() {
		s := Scenario{
			Transferer: MakeBuilder().WithGap(20 * time.Millisecond).Build("Bank"),
			Timeout:    300 * time.Millisecond,
		}

		r := s.Run()

		Expect(r.Verdict.Deadlocked).To(BeTrue())
		Expect(r.Verdict.Stuck).To(Equal([]int{0, 1}))
		Expect(r.Balances).To(BeNil())
		Expect(r.Cycle).To(Equal([]string{"Thread-1", "Thread-2"}))
		Expect(r.Waits).To(HaveLen(2))
		Expect(r.Waits[0].WaitsFor).To(BeIdenticalTo(r.Accounts[1]))
		Expect(r.Waits[1].WaitsFor).To(BeIdenticalTo(r.Accounts[0]))
	})

	It("should always complete ordered transfers with exact balances", func() {
		s := Scenario{
			Transferer: MakeBuilder().
				WithGap(0).
				WithJitter(100 * time.Microsecond).
				Build("Bank"),
			Timeout: 3 * time.Second,
			Ordered: true,
		}

		for range 1000 {
			r := s.Run()

			Expect(r.Verdict.Deadlocked).To(BeFalse())
			Expect(r.Outcomes).To(Equal([2]Outcome{Transferred, Transferred}))
			Expect(r.Balances).To(Equal(map[AccountID]int64{1: 950, 2: 1050}))
		}
	})

	It("should complete ordered transfers with the original gap", func() {
		s := Scenario{
			Transferer: MakeBuilder().Build("Bank"),
			Timeout:    3 * time.Second,
			Ordered:    true,
		}

		r := s.Run()

		Expect(r.Verdict.Deadlocked).To(BeFalse())
		Expect(r.Balances).To(Equal(map[AccountID]int64{1: 950, 2: 1050}))
		Expect(r.Cycle).To(BeNil())
	})

	It("should hand the run state to Prepare", func() {
		var (
			seen  [2]*Account
			table *LockTable
		)

		s := Scenario{
			Transferer: MakeBuilder().WithGap(0).Build("Bank"),
			Timeout:    3 * time.Second,
			Ordered:    true,
			Prepare: func(accounts [2]*Account, t *LockTable) {
				seen = accounts
				table = t
			},
		}

		r := s.Run()

		Expect(seen).To(Equal(r.Accounts))
		Expect(table).NotTo(BeNil())
		Expect(table.Waits()).To(BeEmpty())
	})
})
