// Package logger provides a process-wide zap logger with request scoping.
//
// Init is called once from main. Handlers and services pull the request
// scoped logger with From(ctx); code without a context uses L().
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
//	defer logger.Sync()
//
//	log := logger.From(ctx)
//	log.Info("profile fetched", logger.Provider("exact"), logger.Format("json"))
//
// "dev" writes colored console output, "prod" writes JSON.
package logger
