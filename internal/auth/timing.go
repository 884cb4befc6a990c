package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig controls the artificial delay added to failed logins so that
// "unknown account" and "wrong password" take indistinguishable time.
type TimingConfig struct {
	BaseDelayMs   int
	RandomDelayMs int
}

type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

func cryptoRandIntn(max int) int {
	if max <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return int(binary.BigEndian.Uint64(buf[:]) % uint64(max))
}

// WaitFrom sleeps until at least the target delay has elapsed since startTime.
// Success paths return immediately.
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	if success {
		return
	}

	target := time.Duration(td.config.BaseDelayMs)*time.Millisecond +
		time.Duration(cryptoRandIntn(td.config.RandomDelayMs))*time.Millisecond

	if elapsed := time.Since(startTime); elapsed < target {
		time.Sleep(target - elapsed)
	}
}
