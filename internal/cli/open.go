package cli

import (
	"log/slog"
	"os"

	"github.com/keelhq/keel/internal/engine"
	"github.com/keelhq/keel/internal/escrow"
	"github.com/keelhq/keel/internal/store"
	"github.com/keelhq/keel/internal/vault"
)

// openEngine opens the database at path and builds an engine with every
// component registered. The caller owns the returned store and must close it.
func openEngine(path string, verbose bool) (*engine.Engine, *store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	var opts []engine.Option
	if verbose {
		opts = append(opts, engine.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))))
	}

	eng := engine.New(st, opts...)
	for _, app := range []engine.App{escrow.New(), vault.New()} {
		if err := eng.Register(app); err != nil {
			st.Close()
			return nil, nil, WrapExitError(ExitCommandError, "failed to register component", err)
		}
	}
	return eng, st, nil
}
