package txn

import "time"

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func maxElapsedDuration(cfg RetryConfig) time.Duration {
	if cfg.MaxElapsed <= 0 {
		return 0
	}
	return secondsToDuration(cfg.MaxElapsed)
}
