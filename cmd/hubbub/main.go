/*
DESCRIPTION
  hubbub is a PubSubHubbub hub server.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean).

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  This is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY
  or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public
  License for more details.

  You should have received a copy of the GNU General Public License in
  gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

// hubbub is a PubSubHubbub hub. Subscribers POST (un)subscription
// requests to it, it verifies them against the subscriber's callback
// and keeps track of active subscriptions, which publishers reach
// through the admin API.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ausocean/openfish/datastore"
	"github.com/ausocean/utils/logging"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/pubsub/backend"
	"github.com/ausocean/pubsub/gauth"
	"github.com/ausocean/pubsub/hub"
	"github.com/ausocean/pubsub/model"
	"github.com/ausocean/pubsub/notify"
	"github.com/ausocean/pubsub/transport"
)

// Project constants.
const (
	projectID     = "hubbub"
	version       = "v0.1.0"
	defaultPort   = 8080
	adminTokenTTL = 30 * 24 * time.Hour
)

// Logging configuration.
const (
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logSuppress  = true
)

// Secret keys.
const (
	adminSecretKey    = "adminSecret"
	mailjetPublicKey  = "mailjetPublicKey"
	mailjetPrivateKey = "mailjetPrivateKey"
)

// service defines the properties of our web service.
type service struct {
	setupMutex  sync.Mutex
	store       datastore.Store
	hub         *hub.Hub
	sweeper     *sweeper
	configMutex sync.Mutex
	log         logging.Logger
	adminSecret []byte
	debug       bool
	standalone  bool
	storePath   string
	approval    bool
	sweepSpec   string
	configFile  string
	timeout     time.Duration
	concurrency int
}

func main() {
	port := defaultPort
	v := os.Getenv("PORT")
	if v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			port = i
		}
	}

	svc := &service{}
	var host, logFile, tokenFor string
	flag.BoolVar(&svc.debug, "debug", false, "Run in debug mode.")
	flag.BoolVar(&svc.standalone, "standalone", false, "Run in standalone mode.")
	flag.StringVar(&host, "host", "localhost", "Host we run on in standalone mode")
	flag.IntVar(&port, "port", port, "Port we listen on")
	flag.StringVar(&svc.storePath, "filestore", "store", "File store path")
	flag.BoolVar(&svc.approval, "approval", false, "Require manual approval of subscriptions")
	flag.StringVar(&svc.sweepSpec, "sweep", "@hourly", "Cron spec for removing expired subscriptions")
	flag.StringVar(&svc.configFile, "config", "hubbub.json", "Logging config file, reloaded when modified")
	flag.StringVar(&logFile, "logfile", "", "Log file path, in addition to stdout")
	flag.DurationVar(&svc.timeout, "timeout", 10*time.Second, "Timeout for verification and delivery requests")
	flag.IntVar(&svc.concurrency, "concurrency", 16, "Maximum concurrent content deliveries")
	flag.StringVar(&tokenFor, "admintoken", "", "Print an admin token for the given subject and exit")
	flag.Parse()

	level := logging.Info
	if svc.debug {
		level = logging.Debug
	}
	var w io.Writer = os.Stdout
	if logFile != "" {
		// Create lumberjack logger to handle logging to file.
		fileLog := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackup,
			MaxAge:     logMaxAge,
		}
		w = io.MultiWriter(os.Stdout, fileLog)
	}
	svc.log = logging.New(level, w, logSuppress)

	ctx := context.Background()
	if tokenFor != "" {
		secret, err := gauth.GetHexSecret(ctx, projectID, adminSecretKey)
		if err != nil {
			svc.log.Fatal("could not get admin secret", "error", err)
		}
		tok, err := gauth.NewAdminToken(tokenFor, adminTokenTTL, secret)
		if err != nil {
			svc.log.Fatal("could not create admin token", "error", err)
		}
		fmt.Println(tok)
		return
	}

	// Perform one-time setup or bail.
	err := svc.setup(ctx)
	if err != nil {
		svc.log.Fatal("could not set up service", "error", err)
	}

	// Try to load the config file, then watch it so that logging can be
	// reconfigured while the service is running.
	err = svc.loadConfig()
	if err != nil {
		svc.log.Warning("could not load config file", "error", err)
	}
	_, err = watchFile(svc.configFile, svc.onConfigChange, svc.log)
	if err != nil {
		svc.log.Warning("could not watch config file", "error", err)
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(func(c *fiber.Ctx) error {
		svc.log.Debug("request", "method", c.Method(), "path", c.Path())
		return c.Next()
	})
	svc.registerRoutes(app)

	listenOn := fmt.Sprintf("%s:%d", host, port)
	if !svc.standalone {
		listenOn = fmt.Sprintf(":%d", port)
	}
	svc.log.Info("listening", "address", listenOn, "version", version)
	err = app.Listen(listenOn)
	if err != nil {
		svc.log.Fatal("server failed", "error", err)
	}
}

// setup executes per-instance one-time warmup and is used to
// initialize the service.
func (svc *service) setup(ctx context.Context) error {
	svc.setupMutex.Lock()
	defer svc.setupMutex.Unlock()

	if svc.store != nil {
		return nil
	}

	var err error
	if svc.standalone {
		svc.log.Info("running in standalone mode")
		svc.store, err = datastore.NewStore(ctx, "file", projectID, svc.storePath)
	} else {
		svc.log.Info("running in App Engine mode")
		svc.store, err = datastore.NewStore(ctx, "cloud", projectID, "")
	}
	if err != nil {
		return fmt.Errorf("could not set up datastore: %w", err)
	}
	model.RegisterEntities()

	secrets, err := gauth.GetSecrets(ctx, projectID, nil)
	if err != nil {
		svc.log.Warning("could not get secrets, admin API disabled", "error", err)
	}
	if v := secrets[adminSecretKey]; v != "" {
		svc.adminSecret, err = hex.DecodeString(v)
		if err != nil {
			return fmt.Errorf("could not decode %s: %w", adminSecretKey, err)
		}
	}

	notifier, err := svc.newNotifier(secrets)
	if err != nil {
		return err
	}

	tr, err := transport.NewClient(
		transport.WithLogger(svc.log),
		transport.WithTimeout(svc.timeout),
		transport.WithConcurrency(svc.concurrency),
	)
	if err != nil {
		return fmt.Errorf("could not create transport: %w", err)
	}

	es := model.NewEntityStore(svc.store)
	svc.hub, err = hub.New(es, es, tr,
		hub.WithApproval(svc.approval),
		hub.WithNotifier(notifier),
		hub.WithLogger(svc.log),
	)
	if err != nil {
		return fmt.Errorf("could not create hub: %w", err)
	}

	svc.sweeper, err = newSweeper(svc.sweepSpec, svc.hub, svc.log)
	if err != nil {
		return err
	}
	return nil
}

// newNotifier returns the notifier used to report subscriptions
// awaiting approval. Without mail secrets notifications are only logged.
func (svc *service) newNotifier(secrets map[string]string) (*notify.Notifier, error) {
	recipients, period, err := notify.GetOpsEnvVars()
	if err != nil {
		svc.log.Warning("could not get ops env vars", "error", err)
	}
	opts := []notify.Option{
		notify.WithRecipients(recipients),
		notify.WithPeriod(period),
		notify.WithStore(notify.NewStore(svc.store)),
		notify.WithLogger(svc.log),
	}
	if secrets[mailjetPublicKey] != "" && secrets[mailjetPrivateKey] != "" {
		opts = append(opts, notify.WithSecrets(secrets))
	}

	n := &notify.Notifier{}
	err = n.Init(opts...)
	if err != nil {
		return nil, fmt.Errorf("could not initialize notifier: %w", err)
	}
	return n, nil
}

// registerRoutes registers the hub, admin and version endpoints.
func (svc *service) registerRoutes(app *fiber.App) {
	app.Get("/version", svc.versionHandler)
	app.Post("/", svc.hubHandler)
	app.Post("/hub", svc.hubHandler)
	app.Get("/admin/:action", svc.adminHandler)
	app.Post("/admin/:action", svc.adminHandler)
}

// versionHandler handles requests for the version.
func (svc *service) versionHandler(c *fiber.Ctx) error {
	return c.SendString(projectID + " " + version)
}

// hubHandler handles (un)subscription requests.
func (svc *service) hubHandler(c *fiber.Ctx) error {
	h, err := backend.NewHTTPHandler(backend.Fiber, backend.WithFiberHandlerCtx(c))
	if err != nil {
		return fmt.Errorf("could not create handler: %w", err)
	}
	return backend.ServeHub(h, svc.hub, svc.log)
}

// adminHandler handles admin requests, which require an admin token.
func (svc *service) adminHandler(c *fiber.Ctx) error {
	if svc.adminSecret == nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("Admin API disabled.")
	}
	h, err := backend.NewHTTPHandler(backend.Fiber, backend.WithFiberHandlerCtx(c))
	if err != nil {
		return fmt.Errorf("could not create handler: %w", err)
	}
	return backend.ServeAdmin(h, svc.hub, svc.adminSecret, c.Params("action"), svc.log)
}
