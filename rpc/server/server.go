package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/ibgw/lib/market"
	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/ValentinKolb/ibgw/rpc/serializer"
	"github.com/ValentinKolb/ibgw/rpc/transport"
	"github.com/ValentinKolb/ibgw/rpc/transport/base"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("gateway")

// Gateway error codes used by the fake gateway
const (
	CodeClientIDInUse      = 326
	CodeNoSecurityDef      = 200
	CodeUnsupportedRequest = 504
)

// MinVersionHistoricalDataEnd is the first server version that terminates historical
// answers with a separate HistoricalDataEnd message
const MinVersionHistoricalDataEnd = 196

// symbolError is a canned remote error for a symbol
type symbolError struct {
	code    int32
	message string
}

// FakeGateway speaks the server side of the gateway protocol. Historical data and
// account values are canned or synthetic. It is used by tests and the fake-gateway
// command.
//
// Usage:
//
//	g := server.NewFakeGateway(common.DefaultServerConfig(), tcp.NewTCPServerTransport())
//	g.SetBars("AAPL", bars)
//	if err := g.Serve(); err != nil {
//		panic(err)
//	}
type FakeGateway struct {
	config    common.ServerConfig
	transport transport.IRPCServerTransport

	bars          *xsync.MapOf[string, []market.Bar]
	delays        *xsync.MapOf[string, time.Duration]
	dropped       *xsync.MapOf[string, bool]
	failures      *xsync.MapOf[string, symbolError]
	accountMu     sync.RWMutex
	accountValues []market.AccountValue

	// clients holds the session of every connected client id
	clients *xsync.MapOf[int32, *session]
	// received counts the requests per outgoing kind
	received *xsync.MapOf[common.OutgoingKind, int64]
}

// NewFakeGateway creates a fake gateway serving on the given transport
func NewFakeGateway(config common.ServerConfig, transport transport.IRPCServerTransport) *FakeGateway {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	config = config.WithDefaults()
	g := &FakeGateway{
		config:    config,
		transport: transport,
		bars:      xsync.NewMapOf[string, []market.Bar](),
		delays:    xsync.NewMapOf[string, time.Duration](),
		dropped:   xsync.NewMapOf[string, bool](),
		failures:  xsync.NewMapOf[string, symbolError](),
		clients:   xsync.NewMapOf[int32, *session](),
		received:  xsync.NewMapOf[common.OutgoingKind, int64](),
	}
	if transport != nil {
		transport.RegisterHandler(g.ServeConn)
	}
	return g
}

// --------------------------------------------------------------------------
// Serving
// --------------------------------------------------------------------------

// Serve listens on the configured endpoint until Close is called
func (g *FakeGateway) Serve() error {
	if g.transport == nil {
		return fmt.Errorf("no transport configured")
	}
	Logger.Infof("Starting fake gateway (server version %d)", g.config.ServerVersion)
	Logger.Infof(g.config.String())
	return g.transport.Listen(g.config.Endpoint)
}

// ServeListener serves an existing listener until Close is called
func (g *FakeGateway) ServeListener(listener net.Listener) error {
	if g.transport == nil {
		return fmt.Errorf("no transport configured")
	}
	return g.transport.Serve(listener)
}

// Addr returns the listening address
func (g *FakeGateway) Addr() net.Addr {
	if g.transport == nil {
		return nil
	}
	return g.transport.Addr()
}

// Close stops the gateway and closes every client connection
func (g *FakeGateway) Close() error {
	if g.transport == nil {
		return nil
	}
	return g.transport.Close()
}

// --------------------------------------------------------------------------
// Test hooks
// --------------------------------------------------------------------------

// SetBars sets the bars returned for a symbol
func (g *FakeGateway) SetBars(symbol string, bars []market.Bar) {
	g.bars.Store(symbol, bars)
}

// SetDelay delays the answers for a symbol, answers of other symbols overtake them
func (g *FakeGateway) SetDelay(symbol string, delay time.Duration) {
	g.delays.Store(symbol, delay)
}

// Drop makes the gateway never answer requests for a symbol
func (g *FakeGateway) Drop(symbol string) {
	g.dropped.Store(symbol, true)
}

// FailSymbol answers requests for a symbol with a remote error
func (g *FakeGateway) FailSymbol(symbol string, code int32, message string) {
	g.failures.Store(symbol, symbolError{code: code, message: message})
}

// SetAccountValues sets the values streamed for an account download
func (g *FakeGateway) SetAccountValues(values []market.AccountValue) {
	g.accountMu.Lock()
	defer g.accountMu.Unlock()
	g.accountValues = append([]market.AccountValue(nil), values...)
}

// Received returns how many requests of a kind were received over all connections
func (g *FakeGateway) Received(kind common.OutgoingKind) int64 {
	n, _ := g.received.Load(kind)
	return n
}

// Clients returns the number of connected clients
func (g *FakeGateway) Clients() int {
	return g.clients.Size()
}

// --------------------------------------------------------------------------
// Connection handling
// --------------------------------------------------------------------------

// session is the server side of one client connection
type session struct {
	conn     net.Conn
	clientID int32
	version  int
	writeMu  sync.Mutex
	wg       sync.WaitGroup

	// cancelled holds the ids of cancelled keep-up-to-date requests
	cancelled *xsync.MapOf[int32, bool]
}

// send writes one message, concurrent answers never interleave
func (s *session) send(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(base.EncodeFrame(payload))
	return err
}

func (s *session) sendFields(values ...interface{}) error {
	payload, err := serializer.EncodeFields(values...)
	if err != nil {
		return err
	}
	return s.send(payload)
}

func (s *session) sendError(id int32, code int32, message string) error {
	return s.sendFields(int(common.InError), 2, id, code, message)
}

// ServeConn serves one client connection until it is closed
func (g *FakeGateway) ServeConn(conn net.Conn) {
	defer conn.Close()

	s, err := g.handshake(conn)
	if err != nil {
		Logger.Warningf("Handshake with %s failed: %v", conn.RemoteAddr(), err)
		return
	}

	if _, loaded := g.clients.LoadOrStore(s.clientID, s); loaded {
		Logger.Warningf("Client id %d already in use", s.clientID)
		s.sendError(-1, CodeClientIDInUse, fmt.Sprintf("Unable to connect as the client id is already in use (%d)", s.clientID))
		return
	}
	defer g.clients.Delete(s.clientID)
	defer s.wg.Wait()

	Logger.Infof("Client %d connected from %s", s.clientID, conn.RemoteAddr())

	// session announcements, as a real gateway sends them
	s.sendFields(int(common.InNextValidID), 1, g.config.NextValidID)
	s.sendFields(int(common.InManagedAccounts), 1, strings.Join(g.config.Accounts, ","))

	for {
		payload, err := base.ReadFrame(conn, g.config.MaxFrameBytes)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				Logger.Infof("Client %d disconnected", s.clientID)
			} else {
				Logger.Errorf("Error reading from client %d: %v", s.clientID, err)
			}
			return
		}

		fields, err := serializer.SplitFields(payload)
		if err != nil || len(fields) == 0 {
			Logger.Warningf("Dropping malformed request from client %d: %v", s.clientID, err)
			continue
		}
		g.handleRequest(s, fields)
	}
}

// handshake runs the server side of the version negotiation
func (g *FakeGateway) handshake(conn net.Conn) (*session, error) {
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(conn, prefix); err != nil {
		return nil, err
	}
	if string(prefix) != "API\x00" {
		return nil, fmt.Errorf("unexpected greeting prefix %q", prefix)
	}

	versionRange, err := base.ReadFrame(conn, g.config.MaxFrameBytes)
	if err != nil {
		return nil, err
	}
	var minVersion, maxVersion int
	if _, err := fmt.Sscanf(string(versionRange), "v%d..%d", &minVersion, &maxVersion); err != nil {
		return nil, fmt.Errorf("invalid version range %q: %w", versionRange, err)
	}
	if g.config.ServerVersion < minVersion {
		return nil, fmt.Errorf("client requires version >= %d, gateway speaks %d", minVersion, g.config.ServerVersion)
	}
	version := min(g.config.ServerVersion, maxVersion)

	reply, err := serializer.EncodeFields(version, time.Now().Format("20060102 15:04:05 MST"))
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(base.EncodeFrame(reply)); err != nil {
		return nil, err
	}

	start, err := base.ReadFrame(conn, g.config.MaxFrameBytes)
	if err != nil {
		return nil, err
	}
	c, err := serializer.NewFieldCursor(start)
	if err != nil {
		return nil, err
	}
	if kind := common.OutgoingKind(c.NextInt()); kind != common.OutStartAPI {
		return nil, fmt.Errorf("expected %s, got %s", common.OutStartAPI, kind)
	}
	c.Skip(1) // version

	return &session{
		conn:      conn,
		clientID:  c.NextInt32(),
		version:   version,
		cancelled: xsync.NewMapOf[int32, bool](),
	}, nil
}

// handleRequest answers one request
func (g *FakeGateway) handleRequest(s *session, fields []string) {
	kind, err := strconv.Atoi(fields[0])
	if err != nil {
		s.sendError(-1, CodeUnsupportedRequest, fmt.Sprintf("invalid message kind %q", fields[0]))
		return
	}
	g.received.Compute(common.OutgoingKind(kind), func(n int64, _ bool) (int64, bool) {
		return n + 1, false
	})

	c := serializer.NewFieldCursorFromFields(fields[1:])
	switch common.OutgoingKind(kind) {
	case common.OutReqHistoricalData:
		g.handleHistoricalData(s, c)
	case common.OutReqAccountData:
		g.handleAccountData(s, c)
	case common.OutCancelHistoricalData:
		c.Skip(1) // version
		id := c.NextInt32()
		s.cancelled.Store(id, true)
		Logger.Debugf("Client %d cancelled historical request %d", s.clientID, id)
	default:
		Logger.Warningf("Unsupported request kind %d from client %d", kind, s.clientID)
		s.sendError(-1, CodeUnsupportedRequest, fmt.Sprintf("unsupported request kind %d", kind))
	}
}

// handleHistoricalData answers a historical data request, possibly delayed
func (g *FakeGateway) handleHistoricalData(s *session, c *serializer.FieldCursor) {
	id := c.NextInt32()
	contract := serializer.DecodeContract(c)
	c.Skip(4) // include expired, end date, bar size, duration
	c.Skip(3) // use RTH, what to show, format date
	keepUpToDate := c.NextBool()

	if dropped, _ := g.dropped.Load(contract.Symbol); dropped {
		Logger.Debugf("Dropping historical request %d for %s", id, contract.Symbol)
		return
	}

	answer := func() {
		if symErr, ok := g.failures.Load(contract.Symbol); ok {
			s.sendError(id, symErr.code, symErr.message)
			return
		}

		bars, ok := g.bars.Load(contract.Symbol)
		if !ok {
			bars = syntheticBars(contract.Symbol, g.config.DefaultBars)
		}
		start, end := "", ""
		if len(bars) > 0 {
			start, end = bars[0].Date, bars[len(bars)-1].Date
		}

		w := serializer.NewFieldWriter()
		w.AddInt(int64(common.InHistoricalData))
		w.AddInt(int64(id))
		w.AddString(start)
		w.AddString(end)
		w.AddInt(int64(len(bars)))
		for _, bar := range bars {
			serializer.EncodeBar(w, bar)
		}
		payload, err := w.Payload()
		if err != nil {
			Logger.Errorf("Failed to encode bars for %s: %v", contract.Symbol, err)
			return
		}
		if err := s.send(payload); err != nil {
			return
		}
		if s.version >= MinVersionHistoricalDataEnd {
			s.sendFields(int(common.InHistoricalDataEnd), id, start, end)
		}

		if keepUpToDate && len(bars) > 0 {
			if cancelled, _ := s.cancelled.Load(id); !cancelled {
				last := bars[len(bars)-1]
				s.sendFields(int(common.InHistoricalDataUpdate), id, last.BarCount, last.Date,
					last.Open, last.Close, last.High, last.Low, last.WAP, last.Volume)
			}
		}
	}

	delay, _ := g.delays.Load(contract.Symbol)
	if delay <= 0 {
		answer()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		time.Sleep(delay)
		answer()
	}()
}

// handleAccountData streams the account values followed by the download end
func (g *FakeGateway) handleAccountData(s *session, c *serializer.FieldCursor) {
	c.Skip(1) // version
	subscribe := c.NextBool()
	account := c.NextString()
	if !subscribe {
		return
	}
	if account == "" && len(g.config.Accounts) > 0 {
		account = g.config.Accounts[0]
	}

	g.accountMu.RLock()
	values := g.accountValues
	g.accountMu.RUnlock()

	for _, v := range values {
		if v.Account != "" && v.Account != account {
			continue
		}
		if err := s.sendFields(int(common.InAccountValue), 2, v.Key, v.Value, v.Currency, account); err != nil {
			return
		}
	}
	s.sendFields(int(common.InAccountDownloadEnd), 1, account)
}

// syntheticBars creates n deterministic daily bars for a symbol
func syntheticBars(symbol string, n int) []market.Bar {
	seed := 0
	for _, r := range symbol {
		seed += int(r)
	}
	price := float64(50 + seed%200)

	day := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, 0, n)
	for i := 0; i < n; i++ {
		open := price + float64(i)
		bars = append(bars, market.Bar{
			Date:     day.AddDate(0, 0, i).Format("20060102"),
			Open:     open,
			High:     open + 2,
			Low:      open - 1,
			Close:    open + 1,
			Volume:   float64(10000 * (i + 1)),
			WAP:      open + 0.5,
			BarCount: int32(100 + i),
		})
	}
	return bars
}
