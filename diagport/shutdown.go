package diagport

// Shutdown implements the IPC half of spec §4.6 (C8): a CAS on
// shuttingDown (idempotent — a second call returns false immediately),
// closing every port with the shutdown flag set, and clearing
// currentPort. The port set itself is not freed and
// GetNextAvailableStream's in-flight poll is not forcibly unblocked — an
// accepted open race, same as the original (spec §9).
func (p *Poller) Shutdown() bool {
	if !p.shuttingDown.CompareAndSwap(false, true) {
		return false
	}
	p.ClosePorts()
	p.mu.Lock()
	p.currentPort = nil
	p.mu.Unlock()
	return true
}

// ClosePorts closes every port in the current set, honoring the shutdown
// flag's effect on whether a connect port's cached stream is also closed
// (spec §4.4 "Close").
func (p *Poller) ClosePorts() {
	shuttingDown := p.shuttingDown.Load()
	for _, port := range p.snapshotPorts() {
		if err := port.Close(shuttingDown); err != nil {
			p.log.Warn("diagport: error closing port", "address", port.Address(), "error", err)
		}
	}
}
