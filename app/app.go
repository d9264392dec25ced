// Package app wires all components of the spikematch server together and
// runs them.
package app

import (
	"context"

	"github.com/lefinal/spikematch/catalog"
	"github.com/lefinal/spikematch/clock"
	"github.com/lefinal/spikematch/combat"
	"github.com/lefinal/spikematch/errors"
	"github.com/lefinal/spikematch/eventpub"
	"github.com/lefinal/spikematch/lobby"
	"github.com/lefinal/spikematch/logging"
	"github.com/lefinal/spikematch/match"
	"github.com/lefinal/spikematch/web_server"
	"github.com/lefinal/spikematch/ws"
	"go.uber.org/zap"
)

// defaultHitRange is the maximum hit range for the stand-in target resolver.
const defaultHitRange = 50

// App is a complete spikematch server instance.
type App struct {
	// config is the main config used for the App.
	config Config
	// catalog holds the character and weapon definitions.
	catalog *catalog.Catalog
	// store is the authoritative match state.
	store *match.Store
	// resolver resolves fire events against the match state.
	resolver *combat.Resolver
	// lobby handles client reception and event broadcasting.
	lobby *lobby.Lobby
	// wsHub is the hub for websocket connections.
	wsHub *ws.Hub
	// webServer is used for http requests and websocket connections.
	webServer *web_server.WebServer
	// eventPublisher publishes match events via MQTT. Nil when no MQTT address
	// is configured.
	eventPublisher *eventpub.Publisher
}

func NewApp(config Config) *App {
	return &App{
		config: config,
	}
}

// Boot sets everything up based on the set config and runs until the given
// context is done.
func (app *App) Boot(ctx context.Context) error {
	// Validate config.
	err := ValidateConfig(app.config)
	if err != nil {
		return errors.Error{
			Code:    errors.ErrFatal,
			Err:     err,
			Message: "invalid config",
		}
	}
	// Setup logger.
	logger := logging.NewLogger(logging.Config{
		Level:         app.config.Log.Level,
		File:          app.config.Log.File,
		FileMaxSizeMB: app.config.Log.FileMaxSizeMB,
		FileKeepDays:  app.config.Log.FileKeepDays,
	})
	logging.ApplyToGlobalLoggers(logger)
	defer func(loggerToSync *zap.Logger) {
		_ = loggerToSync.Sync()
	}(logger)
	// Boot.
	err = app.boot(ctx)
	if err != nil {
		err = errors.Wrap(err, "boot", nil)
		errors.Log(logging.AppLogger, err)
		return err
	}
	return nil
}

func (app *App) boot(ctx context.Context) error {
	logging.AppLogger.Warn("booting up")
	// Load the character and weapon catalog.
	cat, err := catalog.New()
	if err != nil {
		return errors.Wrap(err, "load catalog", nil)
	}
	app.catalog = cat
	// Create the match state store.
	app.store = match.NewStore(logging.MatchLogger, app.catalog, clock.System(), app.config.Match)
	// Create the combat resolver.
	app.resolver = combat.NewResolver(logging.CombatLogger, app.store,
		combat.NearestOpponentResolver(defaultHitRange))
	// Create the lobby and websocket hub.
	app.lobby = lobby.NewLobby(logging.LobbyLogger, app.store, app.resolver)
	app.wsHub = ws.NewHub(app.lobby)
	// Create the MQTT event publisher if an address is provided.
	if app.config.MQTTAddr.Valid {
		publisher, err := eventpub.NewPublisher(logging.EventPubLogger, app.store,
			eventpub.Config{MQTTAddr: app.config.MQTTAddr.String})
		if err != nil {
			return errors.Wrap(err, "create event publisher", nil)
		}
		app.eventPublisher = publisher
	}
	// Create the web server.
	webServer, err := web_server.NewWebServer(web_server.Config{
		ServeAddr:    app.config.ServeAddr,
		WriteTimeout: web_server.DefaultWriteTimeout,
		ReadTimeout:  web_server.DefaultReadTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "create web server", nil)
	}
	app.webServer = webServer
	app.webServer.PopulateRoutes(app.wsHub, ctx)
	logging.AppLogger.Debug("setup completed")
	// Run everything until the context is done.
	err = app.createServices().run(ctx)
	logging.AppLogger.Warn("shutting down")
	return err
}
