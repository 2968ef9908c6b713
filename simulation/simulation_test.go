package simulation

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/lockstep/banking"
	"github.com/sarchlab/lockstep/datarecording"
	"github.com/sarchlab/lockstep/queueing"
	"github.com/sarchlab/lockstep/relay"
)

var _ = Describe("Simulation", func() {
	var (
		mockCtrl   *gomock.Controller
		simulation *Simulation
		comp       *MockNamed
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())

		var err error
		simulation, err = MakeBuilder().WithoutLogHook().Build()
		Expect(err).ToNot(HaveOccurred())

		comp = NewMockNamed(mockCtrl)
		comp.EXPECT().Name().Return("Comp").AnyTimes()
	})

	AfterEach(func() {
		mockCtrl.Finish()
		Expect(simulation.Terminate(context.Background())).To(Succeed())
	})

	It("should have an ID", func() {
		Expect(simulation.ID()).ToNot(BeEmpty())
	})

	It("should register a component", func() {
		simulation.RegisterComponent(comp)

		Expect(simulation.GetComponentByName("Comp")).To(Equal(comp))
		Expect(simulation.GetComponentByName("Other")).To(BeNil())
	})

	It("should return all registered components", func() {
		simulation.RegisterComponent(comp)

		comps := simulation.Components()
		Expect(comps).To(HaveLen(1))
		Expect(comps[0]).To(Equal(comp))
	})

	It("should refuse duplicated names", func() {
		simulation.RegisterComponent(comp)

		Expect(func() { simulation.RegisterComponent(comp) }).To(Panic())
	})

	It("should count events of hookable components", func() {
		r := relay.New("Relay")
		simulation.RegisterComponent(r)

		Expect(r.NumHooks()).To(Equal(1))
		Expect(r.Run(context.Background(), 2)).To(Succeed())

		Expect(simulation.GetCounter().Count(relay.HookPosEmit)).To(Equal(uint64(10)))
		Expect(simulation.GetCounter().CountFor("Relay", relay.HookPosStageStart)).
			To(Equal(uint64(6)))
	})

	Context("with logging", func() {
		It("should log events through the given logger", func() {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}))

			s, err := MakeBuilder().WithLogger(logger, slog.LevelInfo).Build()
			Expect(err).ToNot(HaveOccurred())
			defer s.Terminate(context.Background())

			b := queueing.NewPairBuffer[int]("Buffer", 2)
			s.RegisterComponent(b)

			Expect(b.Produce(context.Background(), "Producer[0]",
				queueing.Pair[int]{First: 1, Second: 2})).To(Succeed())

			Expect(buf.String()).To(ContainSubstring("component=Buffer"))
			Expect(buf.String()).To(ContainSubstring("actor=Producer[0]"))
		})
	})

	Context("with recording", func() {
		It("should store events", func() {
			path := filepath.Join(GinkgoT().TempDir(), "run")

			s, err := MakeBuilder().
				WithoutLogHook().
				WithRecording(datarecording.Config{Path: path}).
				Build()
			Expect(err).ToNot(HaveOccurred())

			r := relay.New("Relay")
			s.RegisterComponent(r)
			Expect(r.Run(context.Background(), 1)).To(Succeed())

			events, err := s.GetRecorder().Events()
			Expect(err).ToNot(HaveOccurred())
			Expect(events).To(HaveLen(11))
			Expect(events[0].RunID).To(Equal(s.ID()))

			Expect(s.Terminate(context.Background())).To(Succeed())
		})
	})

	Context("with monitoring", func() {
		It("should serve registered components", func() {
			s, err := MakeBuilder().WithoutLogHook().WithMonitoring(0).Build()
			Expect(err).ToNot(HaveOccurred())

			s.RegisterComponent(queueing.NewPairBuffer[int]("Buffer", 4))
			s.RegisterComponent(banking.NewAccount(1, "Account1", 10))
			s.RegisterLockTable(banking.NewLockTable())

			rsp, err := http.Get(s.GetMonitor().URL() + "/api/buffers")
			Expect(err).ToNot(HaveOccurred())
			rsp.Body.Close()
			Expect(rsp.StatusCode).To(Equal(http.StatusOK))

			Expect(s.Terminate(context.Background())).To(Succeed())
		})
	})
})
