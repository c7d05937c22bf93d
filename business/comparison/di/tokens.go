// Package di contains dependency injection tokens for the comparison context.
package di

import (
	"github.com/fd1az/savings-bench/business/comparison/app"
	"github.com/fd1az/savings-bench/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Runner   = di.NewToken[*app.Runner]("comparison.Runner")
	Reporter = di.NewToken[app.Reporter]("comparison.Reporter")
	Sinks    = di.NewToken[[]app.Sink]("comparison.Sinks")
)

// Helper functions for type-safe access
func GetRunner(c di.ServiceRegistry) *app.Runner {
	return di.GetToken(c, Runner)
}

func GetReporter(c di.ServiceRegistry) app.Reporter {
	return di.GetToken(c, Reporter)
}

func GetSinks(c di.ServiceRegistry) []app.Sink {
	return di.GetToken(c, Sinks)
}
