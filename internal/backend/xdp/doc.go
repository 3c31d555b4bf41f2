// Package xdp implements the zero-copy backend: an AF_XDP socket bound to
// one network interface queue, its UMEM frame pool, and the four shared
// rings (fill, completion, RX, TX) mmap'd directly from the socket.
//
// Frames never leave UMEM: RecvBatch hands the caller a []byte aliasing a
// UMEM chunk, the worker classifies and reflects it in place, and
// SendBatch posts the same chunk's address back to the kernel on the TX
// ring. ReleaseBatch (for descriptors a worker drops without sending)
// returns the chunk to the fill ring so the kernel can reuse it for RX.
package xdp
