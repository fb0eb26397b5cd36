/*
DESCRIPTION
  subscribe is a command-line PubSubHubbub subscriber.

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

// subscribe subscribes a callback served by this program to a topic on
// a PubSubHubbub hub, then serves the hub's verification and content
// deliveries until interrupted. With -unsubscribe it unsubscribes on
// exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"mime"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ausocean/openfish/datastore"
	"github.com/ausocean/utils/logging"
	"github.com/google/uuid"

	"github.com/ausocean/pubsub/backend"
	"github.com/ausocean/pubsub/gauth"
	"github.com/ausocean/pubsub/model"
	"github.com/ausocean/pubsub/notify"
	"github.com/ausocean/pubsub/subscriber"
	"github.com/ausocean/pubsub/transport"
)

const (
	projectID       = "subscribe"
	shutdownTimeout = 5 * time.Second
	requestTimeout  = 30 * time.Second
)

func main() {
	var (
		hubURL, topic, callback string
		listen, storePath, out  string
		debug, unsubscribe      bool
	)
	flag.StringVar(&hubURL, "hub", "", "Hub URL")
	flag.StringVar(&topic, "topic", "", "Topic URL")
	flag.StringVar(&callback, "callback", "", "Public URL of our callback")
	flag.StringVar(&listen, "listen", ":8081", "Address the callback server listens on")
	flag.StringVar(&storePath, "filestore", "store", "File store path for pending requests")
	flag.StringVar(&out, "out", "", "Directory to save delivered content, if any")
	flag.BoolVar(&unsubscribe, "unsubscribe", false, "Unsubscribe on exit")
	flag.BoolVar(&debug, "debug", false, "Run in debug mode")
	flag.Parse()

	level := logging.Info
	if debug {
		level = logging.Debug
	}
	log := logging.New(level, os.Stdout, true)

	if hubURL == "" || topic == "" || callback == "" {
		fmt.Fprintln(os.Stderr, "-hub, -topic and -callback are required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := datastore.NewStore(ctx, "file", projectID, storePath)
	if err != nil {
		log.Fatal("could not set up datastore", "error", err)
	}
	model.RegisterEntities()

	tr, err := transport.NewClient(transport.WithTimeout(requestTimeout), transport.WithLogger(log))
	if err != nil {
		log.Fatal("could not create transport", "error", err)
	}
	opts := []subscriber.Option{subscriber.WithLogger(log)}
	if out != "" {
		opts = append(opts, subscriber.WithContentHandler(saveContent(out, log)))
	}
	sub, err := subscriber.NewClient(model.NewEntityStore(store), tr, opts...)
	if err != nil {
		log.Fatal("could not create subscriber", "error", err)
	}

	srv, addr, err := serveCallback(listen, callbackHandler(sub, callback, log), log)
	if err != nil {
		log.Fatal("could not serve callback", "error", err)
	}
	log.Info("serving callback", "address", addr.String(), "callback", callback)

	ops, err := newNotifier(ctx, store, log)
	if err != nil {
		log.Warning("could not create notifier", "error", err)
	}

	err = sub.Subscribe(ctx, hubURL, topic, callback)
	if err != nil {
		if ops != nil {
			reportRejection(ctx, ops, hubURL, topic, err, log)
		}
		log.Fatal("could not subscribe", "hub", hubURL, "topic", topic, "error", err)
	}
	log.Info("subscription requested", "hub", hubURL, "topic", topic)

	<-ctx.Done()
	log.Info("shutting down")

	if unsubscribe {
		uctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		err = sub.Unsubscribe(uctx, hubURL, topic, callback)
		if err != nil {
			if ops != nil {
				reportRejection(uctx, ops, hubURL, topic, err, log)
			}
			log.Error("could not unsubscribe", "error", err)
		}
		cancel()
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(sctx)
	if err != nil {
		log.Error("could not shut down callback server", "error", err)
	}
}

// serveCallback binds addr and serves h on it in the background. The
// listener is bound when serveCallback returns.
func serveCallback(addr string, h http.Handler, log logging.Logger) (*http.Server, net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("could not listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: h}
	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("callback server failed", "error", err)
		}
	}()
	return srv, ln.Addr(), nil
}

// notifier sends operator notifications.
type notifier interface {
	Send(ctx context.Context, kind, msg string) error
}

// newNotifier returns a notifier for hub rejections. Mail is sent only
// when mail secrets are available from SUBSCRIBE_SECRETS, otherwise
// notifications are only logged.
func newNotifier(ctx context.Context, store datastore.Store, log logging.Logger) (*notify.Notifier, error) {
	recipients, period, err := notify.GetOpsEnvVars()
	if err != nil {
		log.Warning("could not get ops env vars", "error", err)
	}
	opts := []notify.Option{
		notify.WithRecipients(recipients),
		notify.WithPeriod(period),
		notify.WithStore(notify.NewStore(store)),
		notify.WithLogger(log),
	}
	secrets, err := gauth.GetSecrets(ctx, projectID, nil)
	if err != nil {
		log.Debug("no secrets, notifications will not be mailed", "error", err)
	}
	if secrets["mailjetPublicKey"] != "" && secrets["mailjetPrivateKey"] != "" {
		opts = append(opts, notify.WithSecrets(secrets))
	}

	n := &notify.Notifier{}
	err = n.Init(opts...)
	if err != nil {
		return nil, fmt.Errorf("could not initialize notifier: %w", err)
	}
	return n, nil
}

// reportRejection notifies the operator if err is a hub's rejection of
// a request for topic. It returns true if err was a rejection.
func reportRejection(ctx context.Context, n notifier, hubURL, topic string, err error, log logging.Logger) bool {
	var rejected *subscriber.RejectedError
	if !errors.As(err, &rejected) {
		return false
	}
	msg := fmt.Sprintf("Hub rejected request.\nHub: %s\nTopic: %s\nStatus: %d\nReply: %s",
		hubURL, topic, rejected.StatusCode, rejected.Body)
	sendErr := n.Send(ctx, notify.KindRejected, msg)
	if sendErr != nil {
		log.Warning("could not send rejection notification", "error", sendErr)
	}
	return true
}

// callbackHandler returns an http.Handler serving callback.
func callbackHandler(sub backend.CallbackService, callback string, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, err := backend.NewHTTPHandler(backend.NetHTTP, backend.WithHTTPWriterAndRequest(w, r))
		if err != nil {
			log.Error("could not create handler", "error", err)
			http.Error(w, "Internal error.", http.StatusInternalServerError)
			return
		}
		err = backend.ServeCallback(h, sub, callback, log)
		if err != nil {
			log.Error("could not serve callback", "error", err)
		}
	})
}

// saveContent returns a content handler that writes each delivery to
// a uniquely named file in dir.
func saveContent(dir string, log logging.Logger) subscriber.ContentHandler {
	return func(ctx context.Context, callback, contentType string, body []byte) error {
		name := uuid.NewString() + extension(contentType)
		p := filepath.Join(dir, name)
		err := os.WriteFile(p, body, 0644)
		if err != nil {
			return fmt.Errorf("could not save content: %w", err)
		}
		log.Info("saved content", "file", p, "type", contentType, "size", len(body))
		return nil
	}
}

// extension returns a file extension for contentType, or ".bin".
func extension(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".bin"
	}
	switch mt {
	case "application/atom+xml", "application/rss+xml", "application/xml", "text/xml":
		return ".xml"
	case "application/json":
		return ".json"
	}
	exts, err := mime.ExtensionsByType(mt)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}

