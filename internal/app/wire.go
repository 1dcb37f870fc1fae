// Package app assembles the companion service from configuration.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"digimenu/internal/api"
	"digimenu/internal/backend"
	"digimenu/internal/cart"
	"digimenu/internal/catalog"
	"digimenu/internal/config"
	"digimenu/internal/history"
	"digimenu/internal/notice"
	"digimenu/internal/qrlink"
	"digimenu/internal/schedule"
	"digimenu/internal/serve"
	"digimenu/internal/server"
	"digimenu/internal/session"
	"digimenu/internal/state"
	"digimenu/internal/tracker"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger

	Backend      *backend.Client
	Catalog      *catalog.Cache
	Cart         *cart.Store
	History      *history.Store
	Audit        *serve.AuditLog
	Hub          *notice.Hub
	Notices      *notice.Center
	StaffNotices *notice.Center
	Tracker      *tracker.Manager
	Session      *session.Controller
	Board        *serve.Board
	Linker       *qrlink.Linker
	Dispatcher   *qrlink.Dispatcher
	Scan         *qrlink.Session
	Router       chi.Router

	closers []func()
}

type Option func(*options)

type options struct {
	store        state.Store
	opener       qrlink.Opener
	camera       qrlink.Camera
	detector     qrlink.Detector
	scheduleOpts []schedule.Option
}

// WithStateStore replaces the store selected by cfg.State.Driver.
func WithStateStore(st state.Store) Option {
	return func(o *options) { o.store = st }
}

func WithOpener(op qrlink.Opener) Option {
	return func(o *options) { o.opener = op }
}

// WithCamera enables in-app scanning: frames from camera go through detector
// and decoded results reach the same dispatcher as scanned text.
func WithCamera(camera qrlink.Camera, detector qrlink.Detector) Option {
	return func(o *options) {
		o.camera = camera
		o.detector = detector
	}
}

// WithScheduleOptions is applied to every background poller.
func WithScheduleOptions(opts ...schedule.Option) Option {
	return func(o *options) { o.scheduleOpts = append(o.scheduleOpts, opts...) }
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}

	st := o.store
	if st == nil {
		var (
			release func()
			err     error
		)
		st, release, err = NewStateStore(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("opening state store: %w", err)
		}
		a.closers = append(a.closers, release)
	}

	loc, err := cfg.AuditLocation()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading audit timezone: %w", err)
	}

	a.Hub = notice.NewHub(logger)
	go a.Hub.Run()

	a.Notices = notice.NewCenter(cfg.Session.NoticeTTL, logger.With(zap.String("component", "dinerNotices")),
		notice.WithSinks(notice.NewTopicSink(a.Hub, notice.TopicDiner)))
	a.StaffNotices = notice.NewCenter(cfg.Session.NoticeTTL, logger.With(zap.String("component", "staffNotices")),
		notice.WithSinks(notice.NewTopicSink(a.Hub, notice.TopicStaff)))

	a.Backend = backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout, logger.With(zap.String("component", "backend")))
	a.Catalog = catalog.NewCache(a.Backend, logger.With(zap.String("component", "catalog")))
	a.Cart = cart.NewStore(st, logger.With(zap.String("component", "cart")))
	a.History = history.NewStore(st, logger.With(zap.String("component", "history")))
	a.Audit = serve.NewAuditLog(st, loc, logger.With(zap.String("component", "audit")))

	a.Tracker = tracker.NewManager(a.Backend, a.History, a.Notices, cfg.Polling.OrderInterval,
		logger.With(zap.String("component", "tracker")), o.scheduleOpts...)
	a.Session = session.NewController(a.Backend, a.Cart, a.History, a.Catalog, a.Tracker, a.Notices,
		cfg.Session.MaxTables, logger.With(zap.String("component", "session")))
	a.Board = serve.NewBoard(a.Backend, a.Catalog, a.Audit, a.StaffNotices, cfg.Polling.StaffInterval,
		logger, o.scheduleOpts...)
	a.Board.OnUpdate(func(rows []serve.BoardOrder) {
		a.Hub.Broadcast(notice.TopicStaff, "board", rows)
	})

	a.Linker = qrlink.NewLinker(qrlink.Payee{VPA: cfg.Payee.VPA, Name: cfg.Payee.Name, Currency: cfg.Payee.Currency})
	opener := o.opener
	if opener == nil {
		opener = &hubOpener{hub: a.Hub}
	}
	a.Dispatcher = qrlink.NewDispatcher(opener, a.joinSession, logger.With(zap.String("component", "scan")))

	diner := api.NewDinerController(a.Catalog, a.Cart, a.Session, a.History, a.Notices, a.Dispatcher, a.Linker,
		cfg.Payee.Currency, logger)
	staff := api.NewStaffController(a.Board, a.Audit, loc, logger)
	a.Router = server.NewRouter(server.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		JWTSecret:   cfg.Staff.JWTSecret,
	}, diner, staff, a.Hub, logger)

	if o.camera != nil && o.detector != nil {
		scanLogger := logger.With(zap.String("component", "camera"))
		a.Scan = qrlink.NewSession(qrlink.NewScanner(o.camera, o.detector, scanLogger), scanLogger)
		camera := api.NewCameraController(ctx, a.Scan, a.Dispatcher, logger)
		a.Router.Get("/scan/camera", camera.Status)
		a.Router.Post("/scan/camera", camera.StartScan)
		a.Router.Delete("/scan/camera", camera.StopScan)
	}

	return a, nil
}

// Start restores persisted state and launches the background pollers. A
// menu that cannot be fetched yet is retried on the first menu request.
func (a *App) Start(ctx context.Context) error {
	if err := a.Cart.Restore(ctx); err != nil {
		return fmt.Errorf("restoring cart: %w", err)
	}
	if err := a.History.Restore(ctx); err != nil {
		return fmt.Errorf("restoring history: %w", err)
	}
	if err := a.Audit.Restore(ctx); err != nil {
		return fmt.Errorf("restoring audit log: %w", err)
	}

	if err := a.Tracker.Resume(ctx); err != nil {
		return fmt.Errorf("resuming order tracking: %w", err)
	}
	if err := a.Board.Start(ctx); err != nil {
		return fmt.Errorf("starting serve board: %w", err)
	}

	if err := a.Catalog.Load(ctx); err != nil {
		a.Logger.Warn("menu not loaded at startup", zap.Error(err))
	}
	return nil
}

func (a *App) Handler() http.Handler {
	return a.Router
}

// Close stops the camera and the pollers and releases the state store.
func (a *App) Close() {
	if a.Scan != nil {
		a.Scan.Stop()
		a.Scan.Wait()
	}
	if a.Board != nil {
		a.Board.Stop()
	}
	if a.Tracker != nil {
		a.Tracker.StopAll()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// joinSession adopts a scanned session: its table becomes the diner's table
// and its order is tracked like one placed here.
func (a *App) joinSession(ctx context.Context, p qrlink.SessionPayload) error {
	if err := a.Session.SelectTable(p.Table); err != nil {
		return err
	}
	return a.Tracker.Track(ctx, p.OrderNumber)
}

// hubOpener forwards links to the diner's browser, which opens them.
type hubOpener struct {
	hub *notice.Hub
}

func (o *hubOpener) Open(_ context.Context, link string) error {
	o.hub.Broadcast(notice.TopicDiner, "openLink", map[string]string{"link": link})
	return nil
}
