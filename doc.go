// Package rtcoord wires together the finalizer coordination core
// (package finalizer) and the diagnostic port multiplexer (package
// diagport) into a single constructed [Runtime] value.
//
// Neither subsystem package depends on the other, or on this package;
// Runtime is purely a composition root, matching the external interfaces
// described by the two cores' source specification: enableFinalization,
// waitForCycle, isCurrentThreadFinalizer, and shutdownAndWaitForExit on
// the finalizer side, configure/getNextAvailableStream/resumeCurrentPort
// on the diagnostic port side.
package rtcoord
