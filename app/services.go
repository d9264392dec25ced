package app

import (
	"context"

	"github.com/lefinal/spikematch/errors"
	"github.com/lefinal/spikematch/services"
	"golang.org/x/sync/errgroup"
)

type appServices map[string]services.Service

// serviceFunc adapts a plain run function to services.Service.
type serviceFunc func(ctx context.Context) error

func (fn serviceFunc) Run(ctx context.Context) error {
	return fn(ctx)
}

// createServices assembles all services of the App.
func (app *App) createServices() appServices {
	s := appServices{
		"match-store": app.store,
		"lobby":       app.lobby,
		"web-server":  app.webServer,
		"ws-hub": serviceFunc(func(ctx context.Context) error {
			app.wsHub.Run(ctx)
			return nil
		}),
	}
	if app.eventPublisher != nil {
		s["event-pub"] = app.eventPublisher
	}
	return s
}

func (s appServices) run(ctx context.Context) error {
	wg, lifetime := errgroup.WithContext(ctx)
	// Run each.
	for name, serviceToRun := range s {
		name, serviceToRun := name, serviceToRun
		wg.Go(func() error {
			if err := serviceToRun.Run(lifetime); err != nil {
				return errors.Wrap(err, "run service", errors.Details{"service_name": name})
			}
			return nil
		})
	}
	return wg.Wait()
}
