// Package process supervises the LEAP relay daemon when the bridge runs it
// as a child process.
//
// The child is started in its own process group so that a shutdown signal
// reaches anything it forks. Its stdout and stderr are split into lines and
// written to the logger. When the child exits unexpectedly it is restarted
// after a delay that doubles on each consecutive failure, up to a cap; a run
// that lasts longer than the stability threshold resets the delay.
//
// Example usage:
//
//	mgr := process.NewManager(process.RelayConfig(cfg.Relay))
//	mgr.SetLogger(logger)
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
