package quic

import "time"

func SetLingerTimeout(d time.Duration) (restore func()) {
	old := lingerTimeout
	lingerTimeout = d
	return func() { lingerTimeout = old }
}
