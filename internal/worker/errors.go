package worker

import "errors"

// errNoReadyBots is posted upstream as an InspectError when every bot in
// this partition is busy, cooling down, or gone. The manager treats it as
// retryable and re-dispatches to another worker.
var errNoReadyBots = errors.New("no ready bots in partition")
