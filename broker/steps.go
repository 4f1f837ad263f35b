package broker

import (
	"time"

	"github.com/pithecene-io/docbroker/log"
)

// steps logs the elapsed time of each stage of one operation.
type steps struct {
	logger *log.Logger
	start  time.Time
}

func newSteps(logger *log.Logger) *steps {
	return &steps{logger: logger, start: time.Now()}
}

func (s *steps) done(stage string) {
	s.logger.Debug(stage, map[string]any{"elapsed_s": s.elapsed().Seconds()})
}

func (s *steps) elapsed() time.Duration {
	return time.Since(s.start)
}
