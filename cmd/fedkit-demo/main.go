// fedkit-demo is a minimal single-actor ActivityPub server built on the
// fedkit facade. It publishes one actor, answers WebFinger and NodeInfo,
// and accepts Follow activities with an automatic Accept reply.
//
// Usage:
//
//	export ORIGIN=https://yourdomain.com
//	export USERNAME=alice
//	./fedkit-demo
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fedkit/fedkit/collection"
	"github.com/fedkit/fedkit/federation"
	"github.com/fedkit/fedkit/keyutil"
	"github.com/fedkit/fedkit/kv"
	"github.com/fedkit/fedkit/nodeinfo"
	"github.com/fedkit/fedkit/queue"
	"github.com/fedkit/fedkit/vocab"
)

const version = "0.1.0"

type config struct {
	Origin         string
	Username       string
	DisplayName    string
	Summary        string
	DatabaseURL    string
	PrivateKeyPath string
	PublicKeyPath  string
	Port           string
}

func loadConfig() *config {
	cfg := &config{
		Origin:         os.Getenv("ORIGIN"),
		Username:       os.Getenv("USERNAME"),
		DisplayName:    os.Getenv("DISPLAY_NAME"),
		Summary:        os.Getenv("SUMMARY"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		PrivateKeyPath: os.Getenv("RSA_PRIVATE_KEY_PATH"),
		PublicKeyPath:  os.Getenv("RSA_PUBLIC_KEY_PATH"),
		Port:           os.Getenv("PORT"),
	}
	if cfg.Origin == "" {
		slog.Error("ORIGIN is not set; set it to your public base URL, e.g. https://example.com")
		os.Exit(1)
	}
	if cfg.Username == "" {
		cfg.Username = "demo"
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = cfg.Username
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "fedkit.db"
	}
	if cfg.PrivateKeyPath == "" {
		cfg.PrivateKeyPath = "fedkit_rsa.pem"
	}
	if cfg.PublicKeyPath == "" {
		cfg.PublicKeyPath = "fedkit_rsa.pub.pem"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	return cfg
}

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("starting fedkit-demo", "version", version)
	cfg := loadConfig()

	store, err := kv.OpenSQL(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open kv store", "error", err, "url", cfg.DatabaseURL)
		os.Exit(1)
	}
	defer store.Close()

	jobs, err := queue.OpenSQL(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open delivery queue", "error", err, "url", cfg.DatabaseURL)
		os.Exit(1)
	}
	defer jobs.Close()

	pair, err := keyutil.LoadOrGenerate(cfg.PrivateKeyPath, cfg.PublicKeyPath)
	if err != nil {
		slog.Error("failed to load/generate RSA key pair", "error", err)
		os.Exit(1)
	}
	publicPEM, err := keyutil.ExportSPKI(pair.Public)
	if err != nil {
		slog.Error("failed to export public key", "error", err)
		os.Exit(1)
	}

	fed, err := federation.New(federation.Options{
		Origin:          cfg.Origin,
		Store:           store,
		Queue:           jobs,
		UserAgentPrefix: "+" + cfg.Origin,
	})
	if err != nil {
		slog.Error("failed to build federation", "error", err)
		os.Exit(1)
	}

	actors, err := fed.SetActorDispatcher("/users/{handle}", func(fctx *federation.Context, identifier string) (vocab.Actor, error) {
		if identifier != cfg.Username {
			return nil, nil
		}
		return buildActor(fctx, cfg, publicPEM)
	})
	if err != nil {
		slog.Error("actor registration failed", "error", err)
		os.Exit(1)
	}
	actors.SetKeyPairsDispatcher(func(_ *federation.Context, identifier string) ([]*keyutil.KeyPair, error) {
		if identifier != cfg.Username {
			return nil, nil
		}
		return []*keyutil.KeyPair{pair}, nil
	})

	registerCollections(fed)

	listeners, err := fed.SetInboxListeners("/users/{handle}/inbox", "/inbox")
	if err != nil {
		slog.Error("inbox registration failed", "error", err)
		os.Exit(1)
	}
	listeners.
		On("Follow", func(fctx *federation.Context, activity vocab.ActivityEntity) error {
			return acceptFollow(fctx, cfg, activity)
		}).
		On("Undo", func(_ *federation.Context, activity vocab.ActivityEntity) error {
			slog.Info("follower left", "actor", activity.ActorID())
			return nil
		}).
		OnError(func(_ *federation.Context, err error) {
			slog.Error("inbox listener failed", "error", err)
		})

	if err := fed.SetNodeInfoDispatcher("/nodeinfo/2.1", func(*http.Request) (*nodeinfo.NodeInfo, error) {
		return &nodeinfo.NodeInfo{
			Software: nodeinfo.Software{
				Name:       "fedkit-demo",
				Version:    version,
				Repository: "https://github.com/fedkit/fedkit",
			},
			Usage: nodeinfo.Usage{Users: nodeinfo.Users{Total: 1, ActiveMonth: 1, ActiveHalfYear: 1}},
		}, nil
	}); err != nil {
		slog.Error("nodeinfo registration failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := fed.StartQueue(ctx, nil); err != nil {
		slog.Error("failed to start delivery worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      fed.NewMux(nil),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("listening", "addr", srv.Addr, "actor", cfg.Origin+"/users/"+cfg.Username)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
	}
	slog.Info("fedkit-demo stopped")
}

func buildActor(fctx *federation.Context, cfg *config, publicPEM string) (vocab.Actor, error) {
	actorURL, err := fctx.ActorURL(cfg.Username)
	if err != nil {
		return nil, err
	}
	inboxURL, err := fctx.InboxURL(cfg.Username)
	if err != nil {
		return nil, err
	}
	sharedURL, err := fctx.SharedInboxURL()
	if err != nil {
		return nil, err
	}
	outboxURL, err := fctx.CollectionURL("outbox", cfg.Username)
	if err != nil {
		return nil, err
	}
	followersURL, err := fctx.CollectionURL("followers", cfg.Username)
	if err != nil {
		return nil, err
	}

	keyID := *actorURL
	keyID.Fragment = "main-key"
	key, err := vocab.NewCryptographicKey(vocab.Props{
		"id":           &keyID,
		"owner":        actorURL,
		"publicKeyPem": publicPEM,
	})
	if err != nil {
		return nil, err
	}
	endpoints, err := vocab.NewEndpoints(vocab.Props{"sharedInbox": sharedURL})
	if err != nil {
		return nil, err
	}

	return vocab.NewPerson(vocab.Props{
		"id":                        actorURL,
		"preferredUsername":         cfg.Username,
		"name":                      cfg.DisplayName,
		"summary":                   cfg.Summary,
		"inbox":                     inboxURL,
		"outbox":                    outboxURL,
		"followers":                 followersURL,
		"endpoints":                 endpoints,
		"publicKey":                 key,
		"manuallyApprovesFollowers": false,
	})
}

// registerCollections mounts empty outbox/followers collections; a real
// application would back these with its own storage.
func registerCollections(fed *federation.Federation) {
	emptyPage := func(*http.Request, string, string) (*collection.Page, error) {
		return &collection.Page{}, nil
	}
	zero := func(*http.Request, string) (uint64, bool) { return 0, true }

	if _, err := fed.SetOutboxDispatcher("/users/{handle}/outbox", emptyPage); err != nil {
		slog.Error("outbox registration failed", "error", err)
		os.Exit(1)
	}
	if c, err := fed.SetFollowersDispatcher("/users/{handle}/followers", emptyPage); err != nil {
		slog.Error("followers registration failed", "error", err)
		os.Exit(1)
	} else {
		c.SetCounter(zero)
	}
}

// acceptFollow answers an incoming Follow with an Accept delivered back
// to the follower's inbox.
func acceptFollow(fctx *federation.Context, cfg *config, activity vocab.ActivityEntity) error {
	follower := activity.ActorID()
	if follower == nil {
		return nil
	}
	slog.Info("new follower", "actor", follower)

	sender, err := fctx.ActorKeyPairs(cfg.Username)
	if err != nil {
		return err
	}
	accept, err := vocab.NewAccept(vocab.Props{
		"actor":  sender.ActorID,
		"object": activity,
		"to":     follower,
	})
	if err != nil {
		return err
	}
	return fctx.SendActivity(fctx.Context(), sender,
		[]vocab.Value{vocab.RefValue(follower)}, accept, nil)
}
