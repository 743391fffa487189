// Package logx configures sellerbot's structured logging.
//
// Logger is a thin value type over zerolog. The root Logger follows the
// Service, so Apply (log level, file sink, operator chat sink) reaches every
// component logger derived with With.
//
// Console lines are human-readable with a short caller; the file sink is
// JSON. The chat sink mirrors lines at or above its min level to the
// operators through a rate-limited queue.
package logx
