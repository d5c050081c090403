// Package broadcast formats news items and delivers them to every registered
// destination, one attempt per (item, destination) pair.
package broadcast
