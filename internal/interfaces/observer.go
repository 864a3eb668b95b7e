package interfaces

// Observer receives per-read statistics from scan workers. Implementations
// must be safe for concurrent use since every worker reports to the same
// observer.
type Observer interface {
	// ObserveRead is called once per completed read
	ObserveRead(bytes uint64, latencyNs uint64, success bool)

	// ObserveWait is called after each wait round with the number of
	// completions it harvested
	ObserveWait(harvested uint32)

	// ObserveInflight is called after each wait round with the number of
	// reads still in flight
	ObserveInflight(depth uint32)
}

// NoOpObserver discards everything
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(uint64, uint64, bool) {}
func (NoOpObserver) ObserveWait(uint32)               {}
func (NoOpObserver) ObserveInflight(uint32)           {}

var _ Observer = NoOpObserver{}
