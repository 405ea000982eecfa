// Package version хранит сведения о сборке, которые проставляются через -ldflags:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/tickets/internal/version.version=v1.2.0"
package version

import "fmt"

const serviceName = "ticket-service"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки для health-ответов.
func GetVersion() string { return version }

// String форматирует сведения о сборке для стартового лога.
func String() string {
	return fmt.Sprintf("%s version=%s commit=%s date=%s", serviceName, version, commit, date)
}
