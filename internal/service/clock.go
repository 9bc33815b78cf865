package service

import "time"

// nowFunc is swapped out by tests that need to move the clock.
var nowFunc = time.Now
