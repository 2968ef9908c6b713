// Package monitoring serves the live state of a run over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/lockstep/banking"
	"github.com/sarchlab/lockstep/hooking"
	"github.com/sarchlab/lockstep/monitoring/web"
	"github.com/sarchlab/lockstep/naming"
)

// A BufferObserver exposes the fill level of a bounded buffer.
type BufferObserver interface {
	Name() string
	Size() int
	Capacity() int
}

// A PermitObserver exposes the permit counters of a buffer.
type PermitObserver interface {
	FreePermits() int64
	FilledPermits() int64
}

// An AccountObserver exposes a balance without waiting for locks.
type AccountObserver interface {
	Name() string
	TryBalance() (int64, bool)
}

// A StateReporter copies its state under its own locks. The component
// endpoint serializes the copy, never the live component.
type StateReporter interface {
	State() any
}

// namedState describes components that do not report their state.
type namedState struct {
	Name string
}

// Monitor turns a run into a server that allows external monitoring.
type Monitor struct {
	portNumber int

	lock       sync.Mutex
	components []naming.Named
	buffers    []BufferObserver
	accounts   []AccountObserver
	counters   []*hooking.CountHook
	lockTables []*banking.LockTable

	server *http.Server
	url    string
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor. Zero picks a random
// port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		slog.Warn("monitoring port not allowed, using a random port instead",
			"port", portNumber)

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterComponent registers a component to be monitored. Buffers and
// accounts are also listed on their dedicated endpoints.
func (m *Monitor) RegisterComponent(c naming.Named) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.components = append(m.components, c)

	if b, ok := c.(BufferObserver); ok {
		m.buffers = append(m.buffers, b)
	}

	if a, ok := c.(AccountObserver); ok {
		m.accounts = append(m.accounts, a)
	}
}

// RegisterAccount registers an account that is not a named component.
func (m *Monitor) RegisterAccount(a AccountObserver) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.accounts = append(m.accounts, a)
}

// RegisterCounter registers a hook whose counts are served on /api/events.
func (m *Monitor) RegisterCounter(c *hooking.CountHook) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.counters = append(m.counters, c)
}

// RegisterLockTable registers a lock table served on /api/locks.
func (m *Monitor) RegisterLockTable(t *banking.LockTable) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.lockTables = append(m.lockTables, t)
}

// Router returns the handler that serves the monitoring API and pages.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/buffers", m.listBuffers)
	r.HandleFunc("/api/accounts", m.listAccounts)
	r.HandleFunc("/api/locks", m.listLocks)
	r.HandleFunc("/api/events", m.listEvents)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/goroutines", m.listGoroutines)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", err
	}

	m.url = fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("monitoring run", "url", m.url)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("monitoring server stopped", "error", err)
		}
	}()

	return m.url, nil
}

// URL returns the address of a started server.
func (m *Monitor) URL() string {
	return m.url
}

// OpenBrowser opens the monitoring page in the default browser.
func (m *Monitor) OpenBrowser() error {
	if m.url == "" {
		return errors.New("monitoring server is not started")
	}

	return browser.OpenURL(m.url)
}

// StopServer shuts the server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	names := make([]string, len(m.components))
	for i, c := range m.components {
		names[i] = c.Name()
	}
	m.lock.Unlock()

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	var state any = namedState{Name: component.Name()}
	if sr, ok := component.(StateReporter); ok {
		state = sr.State()
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(state)
	serializer.SetMaxDepth(2)

	if err := serializer.Serialize(w); err != nil {
		slog.Error("failed to serialize component", "component", name, "error", err)
	}
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) naming.Named {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, c := range m.components {
		if c.Name() == name {
			return c
		}
	}

	http.Error(w, "Component not found", http.StatusNotFound)

	return nil
}

type bufferRsp struct {
	Buffer string `json:"buffer"`
	Level  int    `json:"level"`
	Cap    int    `json:"cap"`
	Free   *int64 `json:"free,omitempty"`
	Filled *int64 `json:"filled,omitempty"`
}

func (m *Monitor) listBuffers(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := buffersParseParams(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error: %s", err), http.StatusBadRequest)
		return
	}

	m.lock.Lock()
	buffers := append([]BufferObserver(nil), m.buffers...)
	m.lock.Unlock()

	rsp := make([]bufferRsp, 0, len(buffers))
	for _, b := range selectBuffers(buffers, sortMethod, limit, offset) {
		entry := bufferRsp{Buffer: b.Name(), Level: b.Size(), Cap: b.Capacity()}

		if p, ok := b.(PermitObserver); ok {
			free, filled := p.FreePermits(), p.FilledPermits()
			entry.Free, entry.Filled = &free, &filled
		}

		rsp = append(rsp, entry)
	}

	writeJSON(w, rsp)
}

func buffersParseParams(r *http.Request) (sort string, limit, offset int, err error) {
	sortMethod := r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "percent"
	}

	if sortMethod != "level" && sortMethod != "percent" {
		return "", 0, 0, fmt.Errorf(
			"invalid sort method: %s, allowed values are `level` and `percent`",
			sortMethod)
	}

	limit, err = intParam(r, "limit")
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offset, err = intParam(r, "offset")
	if err != nil {
		return sortMethod, limit, 0, err
	}

	return sortMethod, limit, offset, nil
}

func intParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}

	return v, nil
}

func bufferPercent(b BufferObserver) float64 {
	return float64(b.Size()) / float64(b.Capacity())
}

// selectBuffers sorts by the given method and returns the page starting at
// offset. A zero limit means no limit.
func selectBuffers(
	buffers []BufferObserver,
	sortMethod string,
	limit, offset int,
) []BufferObserver {
	type level struct {
		b       BufferObserver
		size    int
		percent float64
	}

	levels := make([]level, len(buffers))
	for i, b := range buffers {
		levels[i] = level{b: b, size: b.Size(), percent: bufferPercent(b)}
	}

	sort.SliceStable(levels, func(i, j int) bool {
		if sortMethod == "level" {
			if levels[i].size != levels[j].size {
				return levels[i].size > levels[j].size
			}

			return levels[i].percent > levels[j].percent
		}

		if levels[i].percent != levels[j].percent {
			return levels[i].percent > levels[j].percent
		}

		return levels[i].size > levels[j].size
	})

	offset = min(offset, len(levels))
	end := len(levels)

	if limit > 0 {
		end = min(offset+limit, len(levels))
	}

	selected := make([]BufferObserver, 0, end-offset)
	for _, l := range levels[offset:end] {
		selected = append(selected, l.b)
	}

	return selected
}

type accountRsp struct {
	Account string `json:"account"`
	Balance *int64 `json:"balance"`
	Locked  bool   `json:"locked"`
}

func (m *Monitor) listAccounts(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	accounts := append([]AccountObserver(nil), m.accounts...)
	m.lock.Unlock()

	rsp := make([]accountRsp, len(accounts))
	for i, a := range accounts {
		rsp[i] = accountRsp{Account: a.Name()}

		if b, ok := a.TryBalance(); ok {
			rsp[i].Balance = &b
		} else {
			rsp[i].Locked = true
		}
	}

	writeJSON(w, rsp)
}

type waitRsp struct {
	Actor    string   `json:"actor"`
	Holds    []string `json:"holds"`
	WaitsFor string   `json:"waits_for"`
	Holder   string   `json:"holder"`
}

type lockTableRsp struct {
	Waits []waitRsp `json:"waits"`
	Cycle []string  `json:"cycle"`
}

func (m *Monitor) listLocks(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	tables := append([]*banking.LockTable(nil), m.lockTables...)
	m.lock.Unlock()

	rsp := make([]lockTableRsp, len(tables))
	for i, t := range tables {
		rsp[i].Cycle = t.Cycle()
		rsp[i].Waits = []waitRsp{}

		for _, wait := range t.Waits() {
			holds := make([]string, len(wait.Holds))
			for j, a := range wait.Holds {
				holds[j] = a.Name()
			}

			rsp[i].Waits = append(rsp[i].Waits, waitRsp{
				Actor:    wait.Actor,
				Holds:    holds,
				WaitsFor: wait.WaitsFor.Name(),
				Holder:   wait.Holder,
			})
		}
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listEvents(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	counters := append([]*hooking.CountHook(nil), m.counters...)
	m.lock.Unlock()

	rsp := []hooking.DomainCount{}
	for _, c := range counters {
		rsp = append(rsp, c.Snapshot()...)
	}

	writeJSON(w, rsp)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
	Goroutines int     `json:"goroutines"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	process, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := process.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memory, err := process.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memory.RSS,
		Goroutines: pprof.Lookup("goroutine").Count(),
	})
}

// A GoroutineStack is a group of goroutines parked at the same place.
type GoroutineStack struct {
	Count int64    `json:"count"`
	Stack []string `json:"stack"`
}

func (m *Monitor) listGoroutines(w http.ResponseWriter, _ *http.Request) {
	stacks, err := goroutineStacks()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, stacks)
}

// goroutineStacks groups the current goroutines by stack, largest group
// first.
func goroutineStacks() ([]GoroutineStack, error) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.Lookup("goroutine").WriteTo(buf, 0); err != nil {
		return nil, err
	}

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		return nil, err
	}

	stacks := make([]GoroutineStack, 0, len(prof.Sample))
	for _, s := range prof.Sample {
		g := GoroutineStack{Count: s.Value[0]}

		for _, loc := range s.Location {
			for _, line := range loc.Line {
				if line.Function != nil {
					g.Stack = append(g.Stack, line.Function.Name)
				}
			}
		}

		stacks = append(stacks, g)
	}

	sort.SliceStable(stacks, func(i, j int) bool {
		return stacks[i].Count > stacks[j].Count
	})

	return stacks, nil
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	seconds, err := intParam(r, "seconds")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	duration := time.Second
	if seconds > 0 {
		duration = time.Duration(seconds) * time.Second
	}

	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	select {
	case <-time.After(duration):
	case <-r.Context().Done():
	}

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write monitoring response", "error", err)
	}
}
