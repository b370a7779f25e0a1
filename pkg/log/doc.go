/*
Package log provides structured logging for lookout using zerolog.

The package wraps a single global zerolog.Logger and hands out child loggers
tagged with a component name or a node id. Both the management hub and the
webcam node agent initialise it once from configuration in main.

# Usage

	log.Init(log.Config{
		Level:      log.ParseLevel("debug"),
		JSONOutput: true,
		Output:     os.Stdout,
	})

	registryLog := log.WithComponent("registry")
	registryLog.Info().Str("node_id", "cam-1").Msg("node created")

	log.WithNodeID("cam-1").Warn().Err(err).Msg("announce failed")

# Security

Management URLs and node base URLs may carry credentials or query tokens.
Callers log them only after passing them through discovery.RedactURL; bearer
tokens and shared secrets are never attached to log events.
*/
package log
