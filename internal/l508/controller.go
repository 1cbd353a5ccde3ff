package l508

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/l508/internal/config"
	"github.com/banshee-data/l508/internal/monitoring"
	"github.com/banshee-data/l508/internal/protocol"
	"github.com/banshee-data/l508/internal/timeutil"
	"github.com/banshee-data/l508/internal/transport"
)

// Options configures a Controller.
type Options struct {
	Transport transport.Transport
	Identity  Identity

	SettleDelay time.Duration
	// ScanTimeout bounds discovery; zero means no bound.
	ScanTimeout time.Duration
	// OpTimeout bounds each GATT call; zero means no bound.
	OpTimeout time.Duration

	// Clock drives the settle delay. Defaults to the real clock.
	Clock timeutil.Clock

	Dispatch DispatcherOptions
}

// OptionsFromConfig builds Options from a loaded client config.
func OptionsFromConfig(cfg *config.ClientConfig, tr transport.Transport, recorder FrameRecorder) Options {
	return Options{
		Transport: tr,
		Identity: Identity{
			Manufacturer: cfg.GetExpectedManufacturer(),
			Model:        cfg.GetExpectedModel(),
		},
		SettleDelay: cfg.GetSettleDelay(),
		ScanTimeout: cfg.GetScanTimeout(),
		OpTimeout:   cfg.GetOpTimeout(),
		Dispatch: DispatcherOptions{
			PageB:          cfg.GetRoutePageB(),
			Recorder:       recorder,
			UnknownLogRate: cfg.GetUnknownLogRate(),
		},
	}
}

// Controller drives one L508 through disconnected, connecting and
// connected. At most one session exists at a time.
type Controller struct {
	opts       Options
	store      *Store
	dispatcher *Dispatcher

	mu            sync.Mutex
	sess          *session
	connectCancel context.CancelFunc
	connectDone   chan struct{}
	closed        bool
}

// NewController returns a disconnected Controller.
func NewController(opts Options) *Controller {
	if opts.Transport == nil {
		opts.Transport = transport.Disabled{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Identity == (Identity{}) {
		opts.Identity = DefaultIdentity
	}
	store := NewStore()
	return &Controller{
		opts:       opts,
		store:      store,
		dispatcher: NewDispatcher(store, opts.Dispatch),
	}
}

// Status returns the connection state.
func (c *Controller) Status() Status { return c.store.Status() }

// Snapshot returns the published state.
func (c *Controller) Snapshot() Snapshot { return c.store.Snapshot() }

// Subscribe returns a channel of state updates. See Store.Subscribe.
func (c *Controller) Subscribe() (string, <-chan Update) { return c.store.Subscribe() }

// Unsubscribe stops delivery to a subscriber.
func (c *Controller) Unsubscribe(id string) { c.store.Unsubscribe(id) }

func connectionError(msg string) *protocol.Error {
	return protocol.NewError(protocol.KindConnection, "%s", msg)
}

// Connect discovers, connects, validates and arms the device. It returns
// only once the controller is connected or back to disconnected. Every
// error is a *protocol.Error.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return c.failed(connectionError("controller closed - can not connect"))
	case !c.opts.Transport.Available():
		c.mu.Unlock()
		return c.failed(connectionError("bluetooth is not available in this environment"))
	case c.store.Status() != StatusDisconnected:
		status := c.store.Status()
		c.mu.Unlock()
		return protocol.NewError(protocol.KindConnection, "can not connect while %s", status)
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.connectCancel = cancel
	c.connectDone = done
	c.store.setStatus(StatusConnecting)
	c.mu.Unlock()

	sess, err := c.establish(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(done)
	c.connectCancel = nil
	c.connectDone = nil
	if err == nil && ctx.Err() != nil {
		// Disconnect or the caller gave up after the last step finished.
		sess.teardown()
		err = protocol.Wrap(protocol.KindConnection, "connect cancelled", ctx.Err())
	}
	cancel()
	if err != nil {
		typed := protocol.Wrap(protocol.KindConnection, "error connecting to bluetooth device", err)
		c.store.setLastError(typed)
		c.store.reset(&Notice{Kind: NoticeConnectFailed, Message: typed.Error(), Time: c.opts.Clock.Now()})
		monitoring.Logf("l508: connect failed: %v", typed)
		return typed
	}

	c.sess = sess
	c.store.connected(sess.stats, &Notice{Kind: NoticeConnected, Time: c.opts.Clock.Now()})
	sess.pump(c.dispatcher.Handle, func() { c.lost(sess) })
	monitoring.Logf("l508: connected to %s (%s)", sess.device.Name(), sess.device.Address())
	return nil
}

// failed records err and publishes a connect-failed notice without
// touching the connection state.
func (c *Controller) failed(err *protocol.Error) error {
	c.store.setLastError(err)
	c.store.notify(&Notice{Kind: NoticeConnectFailed, Message: err.Error(), Time: c.opts.Clock.Now()})
	return err
}

// establish runs the connect sequence. On error everything it opened has
// already been torn down.
func (c *Controller) establish(ctx context.Context) (*session, error) {
	scanCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.opts.ScanTimeout > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, c.opts.ScanTimeout)
	}
	device, err := c.opts.Transport.Discover(scanCtx, protocol.DeviceInfoService)
	cancel()
	if err != nil {
		if errors.Is(err, transport.ErrUnavailable) {
			return nil, protocol.Wrap(protocol.KindConnection, "bluetooth is not available in this environment", err)
		}
		return nil, protocol.Wrap(protocol.KindConnection, "error discovering device", err)
	}

	connCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.opts.OpTimeout > 0 {
		connCtx, cancel = context.WithTimeout(ctx, c.opts.OpTimeout)
	}
	link, err := device.Connect(connCtx)
	cancel()
	if err != nil {
		return nil, protocol.Wrap(protocol.KindConnection, "could not connect to GATT server", err)
	}

	sess := newSession(device, link, c.opts.OpTimeout)
	if err := c.setup(ctx, sess); err != nil {
		sess.teardown()
		return nil, err
	}
	return sess, nil
}

// setup validates, reads stats, subscribes and arms.
func (c *Controller) setup(ctx context.Context, sess *session) error {
	if err := Validate(ctx, sess, c.opts.Identity); err != nil {
		return err
	}

	stats, err := readStats(ctx, sess)
	if err != nil {
		return err
	}

	if err := sess.subscribe(ctx, protocol.BatteryService, protocol.BatteryLevelCharacteristic); err != nil {
		return protocol.Wrap(protocol.KindConnection, "error subscribing to battery level", err)
	}
	// published with the connected status, never while connecting
	sess.stats = stats

	if err := sess.subscribe(ctx, protocol.RadarLightService, protocol.RadarLightCharacteristic); err != nil {
		return protocol.Wrap(protocol.KindConnection, "error subscribing to radar", err)
	}
	return sess.arm(ctx, c.opts.Clock, c.opts.SettleDelay)
}

func readStats(ctx context.Context, r Reader) (DeviceStats, error) {
	name, err := r.Read(ctx, protocol.GenericAccessService, protocol.DeviceNameCharacteristic)
	if err != nil {
		return DeviceStats{}, protocol.Wrap(protocol.KindConnection, "error reading device name", err)
	}
	firmware, err := r.Read(ctx, protocol.DeviceInfoService, protocol.FirmwareVersionCharacteristic)
	if err != nil {
		return DeviceStats{}, protocol.Wrap(protocol.KindConnection, "error reading firmware version", err)
	}
	battery, err := r.Read(ctx, protocol.BatteryService, protocol.BatteryLevelCharacteristic)
	if err != nil {
		return DeviceStats{}, protocol.Wrap(protocol.KindConnection, "error reading battery level", err)
	}
	if len(battery) == 0 {
		return DeviceStats{}, protocol.NewError(protocol.KindConnection, "error reading battery level: empty value")
	}
	return DeviceStats{
		Name:            string(name),
		BatteryLevel:    min(int(battery[0]), maxBatteryLevel),
		FirmwareVersion: string(firmware),
	}, nil
}

// Disconnect ends the session. A connect in progress is cancelled and
// Disconnect waits for it to unwind. It is safe to call in any state, more
// than once and after Close.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if cancel, done := c.connectCancel, c.connectDone; cancel != nil {
		c.mu.Unlock()
		cancel()
		<-done
		return
	}
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	if sess == nil {
		return
	}
	sess.teardown()
	c.store.reset(&Notice{Kind: NoticeDisconnected, Time: c.opts.Clock.Now()})
	monitoring.Logf("l508: disconnected from %s", sess.device.Address())
}

// lost handles a disconnect reported by the transport.
func (c *Controller) lost(sess *session) {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	c.mu.Unlock()

	sess.teardown()
	c.store.reset(&Notice{Kind: NoticeLost, Time: c.opts.Clock.Now()})
	monitoring.Logf("l508: lost connection to %s", sess.device.Address())
}

// CycleLightMode asks the device to move to its next light mode.
func (c *Controller) CycleLightMode(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return connectionError("could not access characteristic")
	}
	if err := sess.cycleLightMode(ctx); err != nil {
		var typed *protocol.Error
		errors.As(err, &typed)
		c.store.setLastError(typed)
		return err
	}
	return nil
}

// Close disconnects and releases subscribers. After Close, Connect always
// fails and Disconnect is a no-op.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.Disconnect()
	c.store.closeSubscribers()
	return nil
}
