package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vpaa/eventcore/internal/api"
	"github.com/vpaa/eventcore/internal/client"
	"github.com/vpaa/eventcore/internal/reconcile"
	"github.com/vpaa/eventcore/internal/store"
)

// openStore opens the configured SQLite authority.
func (o *RootOptions) openStore(cmd *cobra.Command) (*store.Store, error) {
	if err := o.load(cmd); err != nil {
		return nil, err
	}
	o.Logger.Debug("opening database", "path", o.Config.DBPath)
	st, err := store.Open(o.Config.DBPath,
		store.WithEvaluator(o.Config.Evaluator()),
		store.WithLogger(o.Logger),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// openAuthority returns the remote authority when an API URL is configured
// and the local store otherwise. The returned func releases it.
func (o *RootOptions) openAuthority(cmd *cobra.Command) (api.Authority, func(), error) {
	if err := o.load(cmd); err != nil {
		return nil, nil, err
	}
	if o.Config.APIURL != "" {
		o.Logger.Debug("using remote authority", "url", o.Config.APIURL)
		return client.New(o.Config.APIURL, client.WithLogger(o.Logger)), func() {}, nil
	}

	st, err := o.openStore(cmd)
	if err != nil {
		return nil, nil, err
	}
	return st, func() {
		if err := st.Close(); err != nil {
			o.Logger.Error("error closing database", "error", err)
		}
	}, nil
}

// openEngine attaches a reconciliation engine to the authority and loads
// its first snapshot.
func (o *RootOptions) openEngine(cmd *cobra.Command) (*reconcile.Engine, func(), error) {
	authority, release, err := o.openAuthority(cmd)
	if err != nil {
		return nil, nil, err
	}

	opts := append(o.Config.EngineOptions(o.Logger), reconcile.WithServerSideDedup(true))
	eng := reconcile.New(authority, opts...)
	if _, err := eng.Refresh(commandContext(cmd)); err != nil {
		release()
		return nil, nil, WrapExitError(ExitCommandError, "failed to load events", err)
	}
	o.Logger.Debug("engine ready", "events", len(eng.Snapshot().Events()))
	return eng, release, nil
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// warnStale logs acknowledged writes that never showed up in a
// refresh. They remain listed by the engine until dismissed.
func warnStale(logger *slog.Logger, eng *reconcile.Engine) {
	for _, e := range eng.Stale() {
		logger.Warn("write acknowledged but not visible", "kind", e.Kind, "event", e.EventID, "participant", e.Record.ID)
	}
}
