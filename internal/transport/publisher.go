// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"spectral/internal/analysis"
	applog "spectral/internal/log"
)

// Publisher is the single consumer of an analyser's frame ring. On every
// tick it pulls frames until none are waiting and hands each one to all of
// its transports. It runs in a separate goroutine managed by Start and Stop.
type Publisher struct {
	reader     analysis.FrameReader
	interval   time.Duration
	transports []Transport

	ticker   *time.Ticker   // Ticker that triggers a drain.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects access to ticker and doneChan during Start/Stop.

	sequence  uint32
	published atomic.Uint64
	sendErrs  atomic.Uint64
	skipped   atomic.Uint64 // Frames whose bin count did not match the source.

	// Reused for every frame.
	pulled    analysis.StereoFrame
	frame     Frame
	bandDefs  []analysis.FrequencyBand
	bands     *analysis.BandLevels
	bandNames []string
	geometry  [2]float64 // fftSize, sampleRate the band table was built for
	now       func() time.Time
}

// NewPublisher creates a publisher draining reader into transports.
// If the provided interval is invalid (<= 0), it defaults to 16ms (~60Hz).
func NewPublisher(interval time.Duration, reader analysis.FrameReader, transports ...Transport) (*Publisher, error) {
	if reader == nil {
		return nil, fmt.Errorf("publisher: frame reader cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("Publisher: Invalid interval provided, defaulting to %s", interval)
	}

	return &Publisher{
		reader:     reader,
		interval:   interval,
		transports: transports,
		now:        time.Now,
	}, nil
}

// SetBands attaches per-band levels to every published frame. Call before Start.
func (p *Publisher) SetBands(bands []analysis.FrequencyBand) {
	p.bandDefs = bands
	p.bands = nil
}

// AddTransport registers another sink. Call before Start.
func (p *Publisher) AddTransport(t Transport) {
	p.transports = append(p.transports, t)
}

// Start begins the periodic publishing process.
// It is safe to call Start multiple times; subsequent calls are no-ops if already started.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("Publisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Capture local variables for the goroutine to avoid data races on p.ticker/p.doneChan
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("Publisher: started (interval %s, %d transports)", p.interval, len(p.transports))
		for {
			select {
			case <-ticker.C:
				p.Drain()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times; subsequent calls are no-ops.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		applog.Debugf("Publisher: Stop called but not running.")
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("Publisher: stopped after %d frames", p.published.Load())
	return nil
}

// Drain publishes every frame currently waiting and returns how many were
// sent. It must not run concurrently with the publisher goroutine.
//
// Frames are read from the analyser Source reports, so geometry and data
// come from the same analyser even if the reader swaps it mid-drain.
func (p *Publisher) Drain() int {
	src := p.reader.Source()
	reader := p.reader
	if r, ok := src.(analysis.FrameReader); ok {
		reader = r
	}

	n := 0
	for reader.ReadFrame(&p.pulled) {
		if len(p.pulled.MagnitudeDB) != src.GetNumBins() {
			p.skipped.Add(1)
			continue
		}
		p.fill(src)
		for _, t := range p.transports {
			if err := t.Send(&p.frame); err != nil {
				p.sendErrs.Add(1)
				applog.Debugf("Publisher: send %d failed: %v", p.frame.Sequence, err)
			}
		}
		n++
	}
	p.published.Add(uint64(n))
	return n
}

// fill copies the pulled frame and the geometry of src into p.frame.
func (p *Publisher) fill(src analysis.FrameSource) {
	p.sequence++

	f := &p.frame
	f.Sequence = p.sequence
	f.Timestamp = p.now().UnixNano()
	f.SampleRate = src.GetSampleRate()
	f.FFTSize = src.GetFFTSize()
	f.MagnitudeDB = p.pulled.MagnitudeDB
	f.Pan = p.pulled.Pan

	if p.bandDefs == nil {
		return
	}
	// Rebuild the bin ranges after a reconfiguration.
	if geom := [2]float64{float64(f.FFTSize), f.SampleRate}; p.bands == nil || geom != p.geometry {
		p.bands = analysis.NewBandLevels(src, p.bandDefs)
		p.geometry = geom
		p.bandNames = p.bandNames[:0]
		for _, b := range p.bands.Bands() {
			p.bandNames = append(p.bandNames, b.Name)
		}
	}
	f.Bands = p.bands.Compute(f.MagnitudeDB)
	f.BandNames = p.bandNames
}

// Published returns the number of frames handed to transports.
func (p *Publisher) Published() uint64 { return p.published.Load() }

// SendErrors returns the number of failed transport sends.
func (p *Publisher) SendErrors() uint64 { return p.sendErrs.Load() }

// Skipped returns the number of frames discarded because they did not match
// the geometry of the current source.
func (p *Publisher) Skipped() uint64 { return p.skipped.Load() }

// Close stops the publisher and closes every transport.
func (p *Publisher) Close() error {
	var firstErr error
	if err := p.Stop(); err != nil {
		firstErr = err
	}
	for _, t := range p.transports {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
