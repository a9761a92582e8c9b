package shutdown

import (
	"context"
	"os"
)

//go:generate mockery --name Shutdowner --with-expecter --output mocks --outpkg mocks

// Shutdowner is the interface that components must implement for graceful shutdown
type Shutdowner interface {
	Name() string
	Shutdown(ctx context.Context) error
}

type quiter interface {
	Quit() <-chan os.Signal
}
