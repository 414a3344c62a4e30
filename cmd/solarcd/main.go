package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/solarc/internal/appstore"
	"github.com/dukerupert/solarc/internal/backup"
	"github.com/dukerupert/solarc/internal/database"
	"github.com/dukerupert/solarc/internal/entitlement"
	"github.com/dukerupert/solarc/internal/logging"
	"github.com/dukerupert/solarc/internal/push"
	"github.com/dukerupert/solarc/internal/server"
	"github.com/dukerupert/solarc/internal/store"
	ws "github.com/dukerupert/solarc/internal/websocket"
)

func main() {
	logger := logging.Setup(os.Getenv("SOLARC_LOG_LEVEL"), os.Getenv("SOLARC_LOG_FORMAT"))

	port := os.Getenv("SOLARC_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("SOLARC_DB_PATH")
	if dbPath == "" {
		dbPath = "solarc.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	entitlementStore := store.NewEntitlementStore(db)
	transactionStore := store.NewTransactionStore(db)
	notificationStore := store.NewNotificationStore(db)
	revocationStore := store.NewRevocationStore(db)
	pushStore := store.NewPushStore(db)

	// Signed-record verification key (App Store root-of-trust for this
	// deployment).
	verifyKey, err := appstore.LoadPublicKey(os.Getenv("SOLARC_VERIFY_KEY_PATH"))
	if err != nil {
		logger.Error("load verification key", "error", err)
		os.Exit(1)
	}
	gate := appstore.NewVerifier(verifyKey)

	// App Store Server API client.
	apiKey, err := appstore.LoadPrivateKey(os.Getenv("SOLARC_APPSTORE_KEY_PATH"))
	if err != nil {
		logger.Error("load App Store API key", "error", err)
		os.Exit(1)
	}
	client := appstore.NewClient(appstore.Config{
		IssuerID:   os.Getenv("SOLARC_APPSTORE_ISSUER_ID"),
		KeyID:      os.Getenv("SOLARC_APPSTORE_KEY_ID"),
		BundleID:   os.Getenv("SOLARC_APPSTORE_BUNDLE_ID"),
		PrivateKey: apiKey,
		BaseURL:    os.Getenv("SOLARC_APPSTORE_BASE_URL"),
	})

	catalog := appstore.DefaultCatalog()
	if path := os.Getenv("SOLARC_CATALOG_PATH"); path != "" {
		catalog, err = appstore.LoadCatalog(path)
		if err != nil {
			logger.Error("load catalog", "error", err)
			os.Exit(1)
		}
	}

	hub := ws.NewHub(logger.With("component", "websocket"))
	feed := appstore.NewFeed()
	bridge := appstore.NewBridge(func(productID string) {
		logger.Info("purchase requested", "product_id", productID)
	})
	platform := appstore.NewPlatform(client, feed, bridge, catalog, transactionStore)

	entStore, err := entitlement.NewStore(entitlementStore, logger.With("component", "entitlement"))
	if err != nil {
		logger.Error("load entitlements", "error", err)
		os.Exit(1)
	}

	// Broadcast every purchased-set change over the websocket hub.
	entStore.Subscribe(func(ev entitlement.Event) {
		tier := entitlement.TierFor(ev.ProductID)
		hub.Broadcast(ws.EntitlementMessage(ev.ProductID, tier.String(), ev.Purchased))
	})

	var pushSvc *push.Service
	var alerter *push.Alerter
	if pub, priv := os.Getenv("SOLARC_VAPID_PUBLIC_KEY"), os.Getenv("SOLARC_VAPID_PRIVATE_KEY"); pub != "" && priv != "" {
		pushSvc = push.NewService(pub, priv)
		alerter = push.NewAlerter(pushSvc, pushStore, revocationStore, logger.With("component", "push"))
		entStore.Subscribe(func(ev entitlement.Event) {
			alerter.EntitlementAlert(ev)
		})
	}

	flow := entitlement.NewFlow(platform, gate, entStore, logger.With("component", "flow"))
	if err := flow.RequestProducts(context.Background()); err != nil {
		logger.Warn("initial catalog load", "error", err)
	}

	onNotice := func(n entitlement.Notice) {
		if alerter != nil {
			alerter.RevocationAlert(n)
			return
		}
		if err := revocationStore.Record(n.TransactionID, n.ProductID, n.RevokedAt, n.Reason); err != nil {
			logger.Error("record revocation", "error", err)
		}
	}
	listener := entitlement.NewListener(platform, gate, entStore, onNotice, logger.With("component", "listener"))
	if err := listener.Start(context.Background()); err != nil {
		logger.Error("start listener", "error", err)
		os.Exit(1)
	}

	backupMgr := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("SOLARC_S3_ENDPOINT"),
			Bucket:    os.Getenv("SOLARC_S3_BUCKET"),
			Region:    os.Getenv("SOLARC_S3_REGION"),
			AccessKey: os.Getenv("SOLARC_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("SOLARC_S3_SECRET_KEY"),
		},
		Passphrase: os.Getenv("SOLARC_BACKUP_PASSPHRASE"),
	}, db, logger.With("component", "backup"))
	backupMgr.Start(context.Background())

	reconciler := entitlement.NewReconciler(gate, logger.With("component", "reconcile"))
	srv := server.New(flow, entStore, reconciler, platform, bridge, feed, notificationStore, pushStore, pushSvc, hub, server.Config{
		APIToken: os.Getenv("SOLARC_API_TOKEN"),
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Rate limiter cleanup
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("solarc entitlement service starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	listener.Stop()
	backupMgr.Stop()
}
