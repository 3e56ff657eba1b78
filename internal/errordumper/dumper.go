// Package errordumper contains a counter that periodically reports the errors it received.
package errordumper

import (
	"sync"
	"time"
)

const (
	defaultPeriod = 1 * time.Second
)

// Dumper is a counter that periodically invokes a callback if errors were added.
// It is used for recoverable anomalies, like unexpected encoder statuses
// and capture read errors.
type Dumper struct {
	OnReport func(v uint64, last error)
	Period   time.Duration

	mutex   sync.Mutex
	counter uint64
	total   uint64
	last    error

	terminate chan struct{}
	done      chan struct{}
}

// Start starts the counter.
func (c *Dumper) Start() {
	if c.Period == 0 {
		c.Period = defaultPeriod
	}

	c.terminate = make(chan struct{})
	c.done = make(chan struct{})

	go c.run()
}

// Stop stops the counter.
func (c *Dumper) Stop() {
	close(c.terminate)
	<-c.done
}

// Add adds an error to the counter.
func (c *Dumper) Add(err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.counter++
	c.total++
	c.last = err
}

// Total returns the number of errors added since the counter was created.
func (c *Dumper) Total() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.total
}

func (c *Dumper) report() {
	c.mutex.Lock()
	counter := c.counter
	last := c.last
	c.counter = 0
	c.mutex.Unlock()

	if counter != 0 {
		c.OnReport(counter, last)
	}
}

func (c *Dumper) run() {
	defer close(c.done)

	t := time.NewTicker(c.Period)
	defer t.Stop()

	for {
		select {
		case <-c.terminate:
			c.report()
			return

		case <-t.C:
			c.report()
		}
	}
}
