package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battlife/pkg/config"
	"github.com/charlie0129/battlife/pkg/engine"
	"github.com/charlie0129/battlife/pkg/events"
	"github.com/charlie0129/battlife/pkg/health"
)

// server holds what the HTTP handlers read. Handlers never acquire a record
// themselves; they read the poller's current one or ask the poller.
type server struct {
	conf      config.Config
	poller    *Poller
	projector health.Projector
	hub       *events.EventHub
	scheduler *Scheduler
}

func setupRoutes(s *server) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", s.getConfig)
	router.GET("/record", s.getRecord)
	router.GET("/health", s.getHealth)
	router.GET("/lifespan", s.getLifespan)
	router.GET("/live", s.getLive)
	router.POST("/refresh", s.postRefresh)
	router.GET("/cycle-count", s.getCycleCount)
	router.PUT("/cycle-count", s.setCycleCount)
	router.DELETE("/cycle-count", s.clearCycleCount)
	router.GET("/status", s.getStatus)
	router.GET("/events", s.getEvents)
	router.GET("/version", getVersion)

	return router
}

// scheduleMaintenance (re)registers the cron jobs from the config.
func scheduleMaintenance(s *server, e *engine.Engine) error {
	err := s.scheduler.Schedule(JobRefresh, s.conf.RefreshCron(), func() error {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		_, err := s.poller.Refresh(ctx, true)
		return err
	})
	if err != nil {
		return err
	}

	if e.ChargeLog == nil {
		return nil
	}
	return s.scheduler.Schedule(JobPruneChargeLog, "@daily", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, err := e.ChargeLog.Prune(ctx)
		return err
	})
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	e, err := engine.New(conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			logrus.Errorf("failed to close charge log: %v", err)
		}
	}()

	hub := events.NewEventHub()
	s := &server{
		conf:      conf,
		projector: e.Projector,
		hub:       hub,
		scheduler: NewScheduler(nil),
	}
	pollerOpts := []PollerOption{WithPublisher(hub)}
	if e.ChargeLog != nil {
		pollerOpts = append(pollerOpts, WithChargeLog(e.ChargeLog))
	}
	s.poller = NewPoller(e.Orchestrator, conf, pollerOpts...)

	if err := scheduleMaintenance(s, e); err != nil {
		logrus.Fatalf("failed to schedule maintenance: %v", err)
	}

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			if err := scheduleMaintenance(s, e); err != nil {
				logrus.Errorf("failed to reschedule maintenance: %v", err)
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler:           setupRoutes(s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// A socket left behind by a crashed daemon would make Listen fail.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Fatalf("failed to remove stale socket %s: %v", unixSocketPath, err)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.poller.Start(ctx)
	s.scheduler.Start()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	logrus.Info("stopping scheduler")
	s.scheduler.Stop()

	// The worker must be gone before the charge log is closed.
	logrus.Info("stopping poller")
	s.poller.Stop()

	logrus.Info("exiting")
	return nil
}
