// Package stream provides the per-connection byte accumulator shared by all
// parsing stages of a session.
//
// Every stage pulls input through the same Buffer: it either waits for a
// minimum number of bytes with Fill and consumes a prefix with Discard or
// Take, or pulls whole chunks with Next and gives back what it did not use
// with Unread. Whatever a stage leaves behind is what the next stage, and
// finally the relay, reads first.
package stream
