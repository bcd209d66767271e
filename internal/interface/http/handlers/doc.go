// Package handlers contains reusable pieces of the HTTP interface: readiness
// checks, the Telegram webhook receiver and small middleware.
//
// # Health Checks
//
// Named checks run in parallel; the service is ready when all pass:
//
//	checker := handlers.NewCompositeHealthChecker(version)
//	checker.AddCheck("document", handlers.NewDocumentCheck(store))
//	checker.AddCheck("database", handlers.NewPingCheck(db))
//
//	status := checker.Check(ctx)
//	if !status.Ready {
//	    slog.Warn("not ready", "message", status.Message)
//	}
//
// # Webhook
//
// TelegramWebhook checks the X-Telegram-Bot-Api-Secret-Token header, decodes
// the update and hands it to the bot's dispatcher:
//
//	mux.Handle("POST /telegram/webhook", handlers.NewTelegramWebhook(bot, secret, logger))
//
// # Middleware
//
// Middleware values compose with Wrap; the first one sees the request first:
//
//	h := handlers.Wrap(mux,
//	    handlers.WithRequestID,
//	    handlers.AccessLog(logger, "/healthz"),
//	    handlers.Hardened,
//	)
//
// ETag answers If-None-Match with 304 while the document version is unchanged.
package handlers
