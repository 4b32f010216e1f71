package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"
)

type Worker interface {
	Name() string
	Start(context.Context) error
}

// Group runs workers side by side. The first worker to return, with or without an error,
// stops the others; Start returns once all of them have, with every error joined.
type Group []Worker

func (g Group) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, stopAll := context.WithCancel(ctx)
	defer stopAll()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result error
	)

	wg.Add(len(g))
	for _, w := range g {
		go func(w Worker) {
			defer wg.Done()
			defer stopAll()

			err := w.Start(runCtx)
			if err == nil {
				if ctx.Err() == nil {
					slog.Warn("Worker returned before shutdown", "worker", w.Name())
				}
				return
			}

			mu.Lock()
			result = multierror.Append(result, fmt.Errorf("%s: %w", w.Name(), err))
			mu.Unlock()
		}(w)
	}

	wg.Wait()
	return result
}
