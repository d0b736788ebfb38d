// Package logger constructs the process-wide structured logger.
package logger

import "go.uber.org/zap"

// New returns a production zap logger; development toggles a human-readable
// console encoder.
func New(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
