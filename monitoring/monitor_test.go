package monitoring

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lockstep/banking"
	"github.com/sarchlab/lockstep/hooking"
	"github.com/sarchlab/lockstep/naming"
	"github.com/sarchlab/lockstep/queueing"
	"github.com/sarchlab/lockstep/relay"
)

func get(h http.Handler, url string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

	return rec
}

func decode[T any](rec *httptest.ResponseRecorder) T {
	var v T
	Expect(json.Unmarshal(rec.Body.Bytes(), &v)).To(Succeed())

	return v
}

// sethDoc is the dictionary format written by goseth.
type sethDoc struct {
	Root string              `json:"r"`
	Dict map[string]sethItem `json:"dict"`
}

type sethItem struct {
	Type  string          `json:"t"`
	Value json.RawMessage `json:"v"`
	Len   int             `json:"l"`
}

func (d sethDoc) field(name string) sethItem {
	var fields map[string]string
	Expect(json.Unmarshal(d.Dict[d.Root].Value, &fields)).To(Succeed())
	Expect(fields).To(HaveKey(name))

	return d.Dict[fields[name]]
}

func (d sethDoc) intField(name string) int64 {
	var v int64
	Expect(json.Unmarshal(d.field(name).Value, &v)).To(Succeed())

	return v
}

type plainComponent struct {
	naming.NamedBase
}

var _ = Describe("Monitor", func() {
	var (
		m       *Monitor
		router  http.Handler
		small   *queueing.PairBuffer[int]
		big     *queueing.PairBuffer[int]
		account *banking.Account
	)

	BeforeEach(func() {
		m = NewMonitor()

		small = queueing.NewPairBuffer[int]("Small", 2)
		big = queueing.NewPairBuffer[int]("Big", 8)
		account = banking.NewAccount(1, "Account1", 1000)

		Expect(small.Produce(context.Background(), "", queueing.Pair[int]{})).To(Succeed())
		Expect(big.Produce(context.Background(), "", queueing.Pair[int]{})).To(Succeed())
		Expect(big.Produce(context.Background(), "", queueing.Pair[int]{})).To(Succeed())

		m.RegisterComponent(small)
		m.RegisterComponent(big)
		m.RegisterComponent(account)

		router = m.Router()
	})

	It("should ignore privileged ports", func() {
		Expect(NewMonitor().WithPortNumber(80).portNumber).To(Equal(0))
		Expect(NewMonitor().WithPortNumber(8080).portNumber).To(Equal(8080))
	})

	It("should list components", func() {
		rec := get(router, "/api/list_components")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(decode[[]string](rec)).To(Equal([]string{"Small", "Big", "Account1"}))
	})

	It("should describe a buffer from a copy of its state", func() {
		rec := get(router, "/api/component/Big")
		Expect(rec.Code).To(Equal(http.StatusOK))

		doc := decode[sethDoc](rec)
		Expect(doc.Dict[doc.Root].Type).To(HaveSuffix("queueing.PairBufferState"))
		Expect(doc.intField("Size")).To(Equal(int64(4)))
		Expect(doc.intField("Capacity")).To(Equal(int64(8)))
		Expect(doc.intField("Free")).To(Equal(int64(4)))
		Expect(doc.field("Elements").Len).To(Equal(4))
	})

	It("should describe an account", func() {
		doc := decode[sethDoc](get(router, "/api/component/Account1"))

		Expect(doc.intField("Balance")).To(Equal(int64(1000)))
		Expect(string(doc.field("Locked").Value)).To(Equal("false"))
	})

	It("should describe a relay", func() {
		m.RegisterComponent(relay.New("Relay"))

		doc := decode[sethDoc](get(router, "/api/component/Relay"))

		Expect(doc.field("Ready").Len).To(Equal(relay.NumStages))
	})

	It("should describe other components by name only", func() {
		m.RegisterComponent(&plainComponent{NamedBase: naming.MakeNamedBase("Plain")})

		doc := decode[sethDoc](get(router, "/api/component/Plain"))

		Expect(doc.Dict[doc.Root].Type).To(HaveSuffix("monitoring.namedState"))
		Expect(string(doc.field("Name").Value)).To(Equal(`"Plain"`))
	})

	It("should describe a buffer while workers use it", func() {
		buf := queueing.NewPairBuffer[queueing.Item]("Busy", 4)
		m.RegisterComponent(buf)

		done := make(chan error, 1)
		go func() {
			done <- queueing.Pipeline{
				Buffer:           buf,
				Producers:        1,
				Consumers:        1,
				PairsPerProducer: 500,
			}.Run(context.Background())
		}()

		running := true
		for running {
			select {
			case err := <-done:
				Expect(err).ToNot(HaveOccurred())
				running = false
			default:
			}

			rec := get(router, "/api/component/Busy")
			Expect(rec.Code).To(Equal(http.StatusOK))

			doc := decode[sethDoc](rec)
			size := doc.intField("Size")
			Expect(size).To(BeNumerically("<=", 4))
			Expect(size % 2).To(BeZero())
			Expect(doc.field("Elements").Len).To(Equal(int(size)))
		}
	})

	It("should return 404 for unknown components", func() {
		Expect(get(router, "/api/component/Nope").Code).To(Equal(http.StatusNotFound))
	})

	It("should sort buffers by percent", func() {
		rsp := decode[[]bufferRsp](get(router, "/api/buffers"))

		Expect(rsp).To(HaveLen(2))
		Expect(rsp[0].Buffer).To(Equal("Small"))
		Expect(rsp[0].Level).To(Equal(2))
		Expect(*rsp[0].Free).To(Equal(int64(0)))
		Expect(*rsp[0].Filled).To(Equal(int64(2)))
		Expect(rsp[1].Buffer).To(Equal("Big"))
	})

	It("should sort buffers by level and page them", func() {
		rsp := decode[[]bufferRsp](get(router, "/api/buffers?sort=level&limit=1"))
		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0].Buffer).To(Equal("Big"))

		rsp = decode[[]bufferRsp](get(router, "/api/buffers?sort=level&offset=1"))
		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0].Buffer).To(Equal("Small"))

		rsp = decode[[]bufferRsp](get(router, "/api/buffers?offset=5"))
		Expect(rsp).To(BeEmpty())
	})

	It("should reject bad buffer queries", func() {
		Expect(get(router, "/api/buffers?sort=name").Code).To(Equal(http.StatusBadRequest))
		Expect(get(router, "/api/buffers?limit=x").Code).To(Equal(http.StatusBadRequest))
	})

	It("should show balances and locked accounts", func() {
		rsp := decode[[]accountRsp](get(router, "/api/accounts"))
		Expect(rsp).To(HaveLen(1))
		Expect(*rsp[0].Balance).To(Equal(int64(1000)))

		unlock := banking.LockInOrder(account)
		defer unlock()

		rsp = decode[[]accountRsp](get(router, "/api/accounts"))
		Expect(rsp[0].Locked).To(BeTrue())
		Expect(rsp[0].Balance).To(BeNil())
	})

	It("should show lock tables", func() {
		a2 := banking.NewAccount(2, "Account2", 0)

		table := banking.NewLockTable()
		table.Acquired("Thread-1", account)
		table.Acquired("Thread-2", a2)
		table.Waiting("Thread-1", a2)
		table.Waiting("Thread-2", account)
		m.RegisterLockTable(table)

		rsp := decode[[]lockTableRsp](get(router, "/api/locks"))

		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0].Cycle).To(Equal([]string{"Thread-1", "Thread-2"}))
		Expect(rsp[0].Waits).To(ContainElement(waitRsp{
			Actor:    "Thread-1",
			Holds:    []string{"Account1"},
			WaitsFor: "Account2",
			Holder:   "Thread-2",
		}))
	})

	It("should show event counts", func() {
		counter := hooking.NewCountHook()
		small.AcceptHook(counter)
		m.RegisterCounter(counter)

		_, err := small.Consume(context.Background(), "")
		Expect(err).ToNot(HaveOccurred())

		rsp := decode[[]hooking.DomainCount](get(router, "/api/events"))
		Expect(rsp).To(ConsistOf(hooking.DomainCount{
			Domain: "Small",
			Pos:    queueing.HookPosConsume.Name,
			Count:  1,
		}))
	})

	It("should report resources", func() {
		rsp := decode[resourceRsp](get(router, "/api/resource"))

		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
		Expect(rsp.Goroutines).To(BeNumerically(">", 0))
	})

	It("should group goroutines by stack", func() {
		rsp := decode[[]GoroutineStack](get(router, "/api/goroutines"))

		Expect(rsp).ToNot(BeEmpty())
		Expect(rsp[0].Count).To(BeNumerically(">=", 1))
	})

	It("should serve the page", func() {
		rec := get(router, "/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})

	It("should start and stop a server", func() {
		url, err := m.StartServer()
		Expect(err).ToNot(HaveOccurred())
		Expect(m.URL()).To(Equal(url))

		rsp, err := http.Get(url + "/api/list_components")
		Expect(err).ToNot(HaveOccurred())
		body, err := io.ReadAll(rsp.Body)
		rsp.Body.Close()
		Expect(err).ToNot(HaveOccurred())
		Expect(string(body)).To(ContainSubstring("Account1"))

		Expect(m.StopServer(context.Background())).To(Succeed())
	})

	It("should not open a browser before starting", func() {
		Expect(NewMonitor().OpenBrowser()).ToNot(Succeed())
	})
})
