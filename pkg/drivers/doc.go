// Package drivers holds the built-in drivers that populate a fresh device
// tree: the root bus and the null and zero character devices.
//
// They exist to give the tree something to open. Real drivers are
// registered by the embedding program.
package drivers
