package queue

import "runtime"

// irqAffinityHeuristic picks a best-effort CPU for a worker when the
// caller did not request a specific pin (cfg.CPUPin < 0): the same CPU
// that would service the RX queue's IRQ under the common one-IRQ-per-CPU
// convention, modulo the number of online CPUs. There is no portable way
// to read /proc/interrupts' queue-to-CPU mapping from here without a
// specific NIC driver's naming scheme, so this is a placeholder spread
// rather than a read of the real IRQ affinity mask.
func irqAffinityHeuristic(queueID int) int {
	n := runtime.NumCPU()
	if n <= 0 {
		return -1
	}
	return queueID % n
}
